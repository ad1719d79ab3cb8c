package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/rocketstat/internal/config"
	"github.com/okian/rocketstat/internal/domain/identity"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Storage.SyncWrites, convey.ShouldBeTrue)
			convey.So(cfg.Players, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Records(t *testing.T) {
	convey.Convey("Given configured players", t, func() {
		cfg := config.New()
		cfg.Players = []config.PlayerConfig{
			{Username: "octane", Platform: "steam", UUID: "76500000000000001"},
			{EntryID: "0b8f3f4e-4c3a-4d7e-9a55-7d2f1c1d2e3f", Name: "Alt", Username: "breakout", Platform: "epic", UUID: "abc123"},
		}

		convey.Convey("When converting them to records", func() {
			recs, err := cfg.Records()

			convey.Convey("Then missing entry ids are derived deterministically", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(recs, convey.ShouldHaveLength, 2)
				convey.So(recs[0].EntryID, convey.ShouldEqual, config.EntryIDFor(identity.Steam, "76500000000000001"))
				convey.So(recs[0].EntryID, convey.ShouldNotEqual, config.EntryIDFor(identity.Epic, "76500000000000001"))
				convey.So(recs[0].Name, convey.ShouldEqual, "octane")
				convey.So(recs[0].Platform, convey.ShouldEqual, identity.Steam)
			})

			convey.Convey("Then configured entry ids are kept", func() {
				convey.So(recs[1].EntryID, convey.ShouldEqual, "0b8f3f4e-4c3a-4d7e-9a55-7d2f1c1d2e3f")
				convey.So(recs[1].UniqueID(), convey.ShouldEqual, "epic_abc123")
			})
		})

		convey.Convey("When the same player is listed twice", func() {
			cfg.Players = append(cfg.Players, config.PlayerConfig{Username: "again", Platform: "steam", UUID: "76500000000000001"})
			_, err := cfg.Records()

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When two players share an entry id", func() {
			cfg.Players = append(cfg.Players, config.PlayerConfig{
				EntryID: "0b8f3f4e-4c3a-4d7e-9a55-7d2f1c1d2e3f", Username: "x", Platform: "steam", UUID: "1",
			})
			_, err := cfg.Records()

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid fields", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":        func(c *config.Config) { c.Addr = "" },
			"unknown log level": func(c *config.Config) { c.LogLevel = "loud" },
			"bad queue size":    func(c *config.Config) { c.QueueSize = 0 },
			"no storage path":   func(c *config.Config) { c.Storage.Path = "" },
			"bad platform": func(c *config.Config) {
				c.Players = []config.PlayerConfig{{Username: "u", Platform: "xbox", UUID: "1"}}
			},
			"missing username": func(c *config.Config) {
				c.Players = []config.PlayerConfig{{Platform: "steam", UUID: "1"}}
			},
			"pipe in uuid": func(c *config.Config) {
				c.Players = []config.PlayerConfig{{Username: "u", Platform: "steam", UUID: "1|2"}}
			},
			"entry id not a uuid": func(c *config.Config) {
				c.Players = []config.PlayerConfig{{EntryID: "nope", Username: "u", Platform: "steam", UUID: "1"}}
			},
		}

		for name, mutate := range cases {
			convey.Convey("Then "+name+" is rejected", func() {
				cfg := config.New()
				mutate(cfg)

				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then an in-memory store needs no path", func() {
			cfg := config.New()
			cfg.Storage.Path = ""
			cfg.Storage.InMemory = true
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
