package identity_test

import (
	"errors"
	"testing"

	"github.com/okian/rocketstat/internal/domain/identity"
	. "github.com/smartystreets/goconvey/convey"
)

func TestExtract(t *testing.T) {
	Convey("Given identity tokens", t, func() {
		Convey("When the token is a well-formed Steam token", func() {
			id, ok := identity.Extract("Steam|76500000000000001|0", identity.Steam)

			Convey("Then the id segment is returned", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "76500000000000001")
			})
		})

		Convey("When the platform label differs", func() {
			_, ok := identity.Extract("EPIC|abc123|0", identity.Steam)

			Convey("Then nothing is extracted", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When the platform label differs only in case", func() {
			id, ok := identity.Extract("epic|AbC123|7", identity.Epic)
			id2, ok2 := identity.Extract("STEAM|x|y", identity.Steam)

			Convey("Then it still matches and the id keeps its case", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "AbC123")
				So(ok2, ShouldBeTrue)
				So(id2, ShouldEqual, "x")
			})
		})

		Convey("When the token does not have exactly three segments", func() {
			for _, token := range []string{
				"",
				"Steam",
				"Steam|76500000000000001",
				"Steam|76500000000000001|0|extra",
				"||||",
			} {
				_, ok := identity.Extract(token, identity.Steam)
				So(ok, ShouldBeFalse)
			}
		})

		Convey("When the id segment is empty", func() {
			id, ok := identity.Extract("Steam||0", identity.Steam)

			Convey("Then the empty id is returned as-is", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, "")
			})
		})
	})
}

func TestIdentityMatches(t *testing.T) {
	Convey("Given a configured Epic identity", t, func() {
		id := identity.Identity{Platform: identity.Epic, ID: "abc123"}

		Convey("Then only the exact id matches", func() {
			So(id.Matches("EPIC|abc123|0"), ShouldBeTrue)
			So(id.Matches("EPIC|ABC123|0"), ShouldBeFalse)
			So(id.Matches("Steam|abc123|0"), ShouldBeFalse)
			So(id.Matches("EPIC|abc123"), ShouldBeFalse)
			So(id.String(), ShouldEqual, "epic_abc123")
		})
	})
}

func TestParsePlatform(t *testing.T) {
	Convey("Given platform strings", t, func() {
		p, err := identity.ParsePlatform(" Steam ")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, identity.Steam)
		So(p.Title(), ShouldEqual, "Steam")

		p, err = identity.ParsePlatform("EPIC")
		So(err, ShouldBeNil)
		So(p, ShouldEqual, identity.Epic)

		_, err = identity.ParsePlatform("xbox")
		So(errors.Is(err, identity.ErrUnknownPlatform), ShouldBeTrue)
	})
}

func TestTokenPlatform(t *testing.T) {
	Convey("Given tokens of various shapes", t, func() {
		Convey("Then only the platform segment is returned", func() {
			So(identity.TokenPlatform("Steam|76561198000000000|0"), ShouldEqual, "Steam")
			So(identity.TokenPlatform("epic|abc|1"), ShouldEqual, "epic")
			So(identity.TokenPlatform("abc"), ShouldBeEmpty)
			So(identity.TokenPlatform(""), ShouldBeEmpty)
		})
	})
}
