package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rocketstat/internal/adapters/http/api"
	repository "github.com/okian/rocketstat/internal/adapters/repository"
	service "github.com/okian/rocketstat/internal/app"
	"github.com/okian/rocketstat/internal/domain/identity"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/internal/domain/views"
	"github.com/okian/rocketstat/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var player = model.PlayerRecord{
	EntryID:  "11111111-1111-5111-8111-111111111111",
	Name:     "Main",
	Username: "octane",
	Platform: identity.Steam,
	UUID:     "76500000000000001",
}

const token = "Steam|76500000000000001|0"

func payload(uid string, mine, theirs float64) map[string]any {
	return map[string]any{
		"TeamData": map[string]any{
			"PlayersTeam": map[string]any{"score": mine},
			"OtherTeam":   map[string]any{"score": theirs},
		},
		"MMRData": map[string]any{
			"player_data":      map[string]any{"uid": uid},
			"current_playlist": map[string]any{"name": "Standard"},
		},
	}
}

func newTestServer(t *testing.T, records ...model.PlayerRecord) (*service.Service, *httptest.Server) {
	t.Helper()
	return newStreamServer(t, []api.StreamOption{api.WithStreamBuffer(4)}, records...)
}

func newStreamServer(t *testing.T, opts []api.StreamOption, records ...model.PlayerRecord) (*service.Service, *httptest.Server) {
	t.Helper()
	ctx := context.Background()
	svc := service.New(
		service.WithStorage(repository.WithInMemory(true)),
		service.WithWorkerCount(1),
		service.WithQueueSize(16),
		service.WithPlayers(records...),
	)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc, opts...).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		_ = svc.Stop(ctx)
	})
	return svc, ts
}

func postJSON(url string, v any) (*http.Response, map[string]any) {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(v)
	return post(url, buf.String())
}

func post(url, body string) (*http.Response, map[string]any) {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func get(url string, v any) *http.Response {
	resp, err := http.Get(url)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	if v != nil {
		So(json.NewDecoder(resp.Body).Decode(v), ShouldBeNil)
	}
	return resp
}

func TestUpdateMatchData(t *testing.T) {
	Convey("Given a server with no players", t, func() {
		_, ts := newTestServer(t)

		Convey("Then update_match_data reports unavailable", func() {
			resp, body := postJSON(ts.URL+"/services/update_match_data", map[string]any{"json_data": payload(token, 1, 0)})
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
			So(body["code"], ShouldEqual, "no_engines")
		})
	})

	Convey("Given a server with one player", t, func() {
		svc, ts := newTestServer(t, player)
		url := ts.URL + "/services/update_match_data"

		Convey("When json_data carries the player's identity", func() {
			resp, body := postJSON(url, map[string]any{"json_data": payload(token, 2, 1)})

			Convey("Then the player's engine accepts it", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["accepted"], ShouldEqual, 1.0)
				So(body["engines"], ShouldEqual, 1.0)
				e, _, _ := svc.Lookup(player.EntryID)
				So(e.Version(), ShouldEqual, uint64(1))
			})
		})

		Convey("When the flattened fields are used", func() {
			p := payload(token, 0, 3)
			resp, body := postJSON(url, map[string]any{"TeamData": p["TeamData"], "MMRData": p["MMRData"]})

			Convey("Then the document is assembled and accepted", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["accepted"], ShouldEqual, 1.0)
				e, _, _ := svc.Lookup(player.EntryID)
				So(e.TeamOutcome(), ShouldNotBeNil)
			})
		})

		Convey("When the identity belongs to someone else", func() {
			resp, body := postJSON(url, map[string]any{"json_data": payload("Epic|someone|0", 2, 1)})

			Convey("Then the call succeeds with nothing accepted", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["accepted"], ShouldEqual, 0.0)
			})
		})

		Convey("When the body is not a JSON object", func() {
			resp, body := post(url, `[1,2,3]`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, "bad_request")

			resp, _ = post(url, `{"json_data":`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is wrong", func() {
			resp := get(url, nil)
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestWebhook(t *testing.T) {
	Convey("Given a server with one player", t, func() {
		svc, ts := newTestServer(t, player)

		Convey("When the document targets a known entry", func() {
			resp, body := postJSON(ts.URL+"/webhook/"+player.EntryID, payload(token, 1, 1))
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["accepted"], ShouldEqual, true)
			e, _, _ := svc.Lookup(player.EntryID)
			So(e.CurrentPlaylist(), ShouldNotBeNil)
		})

		Convey("When the document carries another identity", func() {
			resp, body := postJSON(ts.URL+"/webhook/"+player.EntryID, payload("Steam|1|0", 1, 1))
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["accepted"], ShouldEqual, false)
		})

		Convey("When the entry is unknown", func() {
			resp, body := postJSON(ts.URL+"/webhook/nope", payload(token, 1, 1))
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "not_found")
		})
	})
}

func TestPlayers(t *testing.T) {
	Convey("Given a server with one populated player", t, func() {
		_, ts := newTestServer(t, player)
		resp, _ := postJSON(ts.URL+"/webhook/"+player.EntryID, payload(token, 3, 1))
		So(resp.StatusCode, ShouldEqual, http.StatusOK)

		Convey("Then the player list carries its summary", func() {
			var list []map[string]any
			resp := get(ts.URL+"/players", &list)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(list, ShouldHaveLength, 1)
			So(list[0]["entry_id"], ShouldEqual, player.EntryID)
			So(list[0]["unique_id"], ShouldEqual, "steam_76500000000000001")
			So(list[0]["state"], ShouldEqual, "populated")
			So(list[0]["version"], ShouldEqual, 1.0)
		})

		Convey("Then the player detail carries the document", func() {
			var detail map[string]any
			get(ts.URL+"/players/"+player.EntryID, &detail)
			So(detail["document"], ShouldContainKey, "MMRData")
		})

		Convey("Then every view is exposed", func() {
			var states []views.State
			get(ts.URL+"/players/"+player.EntryID+"/sensors", &states)
			So(states, ShouldHaveLength, len(views.Build(player)))
		})

		Convey("Then a single view can be read", func() {
			var state views.State
			get(ts.URL+"/players/"+player.EntryID+"/sensors/"+player.EntryID+"_match_result", &state)
			So(state.Value, ShouldEqual, views.ResultWin)
		})

		Convey("Then unknown players and views are not found", func() {
			So(get(ts.URL+"/players/nope", nil).StatusCode, ShouldEqual, http.StatusNotFound)
			So(get(ts.URL+"/players/"+player.EntryID+"/sensors/nope", nil).StatusCode, ShouldEqual, http.StatusNotFound)
			So(get(ts.URL+"/players/nope/stream", nil).StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given a running server", t, func() {
		_, ts := newTestServer(t, player)

		Convey("Then /healthz serves metrics", func() {
			resp := get(ts.URL+"/healthz", nil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("Then /stats reports engines", func() {
			var stats map[string]any
			get(ts.URL+"/stats", &stats)
			So(stats["engines"], ShouldEqual, 1.0)
			So(stats["started"], ShouldEqual, true)
		})
	})
}

type message struct {
	Type    string        `json:"type"`
	Session string        `json:"session"`
	EntryID string        `json:"entry_id"`
	States  []views.State `json:"states"`
}

func TestStream(t *testing.T) {
	Convey("Given a websocket client on a player stream", t, func() {
		_, ts := newTestServer(t, player)
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/players/" + player.EntryID + "/stream"
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusSwitchingProtocols)
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var first message
		So(conn.ReadJSON(&first), ShouldBeNil)

		Convey("Then the first message is a full snapshot", func() {
			So(first.Type, ShouldEqual, "snapshot")
			So(first.EntryID, ShouldEqual, player.EntryID)
			So(first.Session, ShouldNotBeEmpty)
			So(first.States, ShouldHaveLength, len(views.Build(player)))
		})

		Convey("When the player receives telemetry", func() {
			resp, _ := postJSON(ts.URL+"/webhook/"+player.EntryID, payload(token, 1, 0))
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			Convey("Then only changed views are pushed", func() {
				var update message
				So(conn.ReadJSON(&update), ShouldBeNil)
				So(update.Type, ShouldEqual, "update")
				So(update.Session, ShouldEqual, first.Session)
				So(len(update.States), ShouldBeGreaterThan, 0)
				So(len(update.States), ShouldBeLessThan, len(first.States))
			})
		})
	})
}

func TestStreamOrigins(t *testing.T) {
	dial := func(ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/players/" + player.EntryID + "/stream"
		header := http.Header{}
		if origin != "" {
			header.Set("Origin", origin)
		}
		return websocket.DefaultDialer.Dial(url, header)
	}

	Convey("Given a stream restricted to one browser origin", t, func() {
		_, ts := newStreamServer(t, []api.StreamOption{api.WithAllowedOrigins("https://Overlay.example/")}, player)

		Convey("When a listed origin connects", func() {
			conn, resp, err := dial(ts, "https://overlay.example")

			Convey("Then the upgrade succeeds", func() {
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusSwitchingProtocols)
				_ = conn.Close()
			})
		})

		Convey("When another origin connects", func() {
			_, resp, err := dial(ts, "https://evil.example")

			Convey("Then it is refused", func() {
				So(err, ShouldEqual, websocket.ErrBadHandshake)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("When a client sends no origin", func() {
			conn, _, err := dial(ts, "")

			Convey("Then it is accepted", func() {
				So(err, ShouldBeNil)
				_ = conn.Close()
			})
		})
	})

	Convey("Given a stream with no origins configured", t, func() {
		_, ts := newTestServer(t, player)

		Convey("When a cross-site page connects", func() {
			_, resp, err := dial(ts, "https://elsewhere.example")

			Convey("Then it is refused", func() {
				So(err, ShouldEqual, websocket.ErrBadHandshake)
				So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			})
		})
	})
}
