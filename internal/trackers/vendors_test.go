// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

package trackers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vicb/flyXC-sub000/internal/config"
	"github.com/vicb/flyXC-sub000/internal/livetrack"
	"github.com/vicb/flyXC-sub000/internal/models"
	"github.com/vicb/flyXC-sub000/internal/roster"
)

const inreachFeed = `<?xml version="1.0" encoding="utf-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Folder>
      <Placemark>
        <TimeStamp><when>2026-05-01T10:00:00Z</when></TimeStamp>
        <ExtendedData>
          <Data name="Latitude"><value>45.5</value></Data>
          <Data name="Longitude"><value>6.25</value></Data>
          <Data name="Elevation"><value>1520.25 m from MSL</value></Data>
          <Data name="Velocity"><value>32.0 km/h</value></Data>
          <Data name="Valid GPS Fix"><value>True</value></Data>
          <Data name="In Emergency"><value>False</value></Data>
          <Data name="Text"><value></value></Data>
        </ExtendedData>
      </Placemark>
      <Placemark>
        <TimeStamp><when>2026-05-01T10:02:00Z</when></TimeStamp>
        <ExtendedData>
          <Data name="Latitude"><value>45.51</value></Data>
          <Data name="Longitude"><value>6.26</value></Data>
          <Data name="Elevation"><value>1400 m from MSL</value></Data>
          <Data name="Valid GPS Fix"><value>True</value></Data>
          <Data name="In Emergency"><value>True</value></Data>
          <Data name="Text"><value>Landed, all good</value></Data>
        </ExtendedData>
      </Placemark>
      <Placemark>
        <name>Track line</name>
      </Placemark>
    </Folder>
  </Document>
</kml>`

func TestParseInreachKML(t *testing.T) {
	t.Parallel()

	fixes, err := parseInreachKML([]byte(inreachFeed))
	if err != nil {
		t.Fatalf("parseInreachKML() error = %v", err)
	}
	if len(fixes) != 2 {
		t.Fatalf("expected 2 fixes, got %d", len(fixes))
	}

	first := fixes[0]
	if first.Lat != 45.5 || first.Lon != 6.25 || first.Alt != 1520.25 {
		t.Errorf("unexpected first fix %+v", first)
	}
	if first.Speed == nil || *first.Speed != 32 {
		t.Errorf("expected a 32 km/h speed, got %v", first.Speed)
	}
	if !first.Valid || first.Emergency || first.Device != models.Inreach {
		t.Errorf("unexpected first fix flags %+v", first)
	}
	if want := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC).Unix(); first.TimeSec != want {
		t.Errorf("TimeSec = %d, want %d", first.TimeSec, want)
	}

	second := fixes[1]
	if !second.Emergency || second.Message != "Landed, all good" || second.Speed != nil {
		t.Errorf("unexpected second fix %+v", second)
	}

	if _, err := parseInreachKML([]byte("<kml><Document>")); err == nil {
		t.Error("expected a parse error for a truncated document")
	}
	if fixes, err := parseInreachKML(nil); err != nil || fixes != nil {
		t.Errorf("expected no fixes for an empty body, got %v, %v", fixes, err)
	}
}

func TestInreachFeedURL(t *testing.T) {
	t.Parallel()

	s := &InreachStrategy{baseURL: "https://share.garmin.com/Feed/Share/", clock: fixedClock}

	u, pw, err := s.feedURL(Device{Account: "alice"})
	if err != nil || pw != "" || !strings.HasPrefix(u, "https://share.garmin.com/Feed/Share/alice?d1=") {
		t.Errorf("feedURL(alice) = %q, %q, %v", u, pw, err)
	}

	u, pw, err = s.feedURL(Device{Account: "https://:secret@share.garmin.com/Feed/Share/bob", LastFixSec: testNowSec - 60})
	if err != nil || pw != "secret" || strings.Contains(u, "secret") {
		t.Errorf("feedURL(bob) = %q, %q, %v", u, pw, err)
	}
	wantD1 := time.Unix(testNowSec-59, 0).UTC().Format("2006-01-02T15:04:05Z")
	if !strings.Contains(u, "d1="+strings.ReplaceAll(wantD1, ":", "%3A")) {
		t.Errorf("expected the request to start after the last fix (%s), got %q", wantD1, u)
	}
}

func TestInreachInvalidAccount(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := &config.VendorConfig{URL: server.URL + "/", Concurrency: 2}
	s := NewInreachStrategy(cfg, NewClient("inreach", cfg), fixedClock)
	result := newFetchCycleResult(testNowSec)

	if err := s.Fetch(context.Background(), []Device{{PilotID: 1, Account: "ghost"}}, result); err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if !errors.Is(result.DeviceErrors[1], ErrInvalidAccount) {
		t.Errorf("expected ErrInvalidAccount, got %v", result.DeviceErrors[1])
	}
}

func TestParseSpotFeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantFixes int
		wantErr   error
		check     func(t *testing.T, fixes []livetrack.Fix)
	}{
		{
			name: "single message object",
			body: `{"response":{"feedMessageResponse":{"count":1,"messages":{"message":
				{"latitude":45.1,"longitude":6.1,"altitude":1200,"unixTime":1700000000,"messageType":"TRACK","batteryState":"LOW"}}}}}`,
			wantFixes: 1,
			check: func(t *testing.T, fixes []livetrack.Fix) {
				if !fixes[0].LowBattery || fixes[0].Emergency || fixes[0].Alt != 1200 {
					t.Errorf("unexpected fix %+v", fixes[0])
				}
			},
		},
		{
			name: "message array",
			body: `{"response":{"feedMessageResponse":{"count":2,"messages":{"message":[
				{"latitude":45.1,"longitude":6.1,"unixTime":1700000000,"messageType":"TRACK","batteryState":"GOOD"},
				{"latitude":45.2,"longitude":6.2,"unixTime":1700000060,"messageType":"HELP","messageContent":"need help"}]}}}}`,
			wantFixes: 2,
			check: func(t *testing.T, fixes []livetrack.Fix) {
				if !fixes[1].Emergency || fixes[1].Message != "need help" {
					t.Errorf("unexpected help fix %+v", fixes[1])
				}
			},
		},
		{
			name:    "invalid feed",
			body:    `{"response":{"errors":{"error":{"code":"E-0195","text":"Feed Not Found"}}}}`,
			wantErr: ErrInvalidAccount,
		},
		{
			name: "no messages",
			body: `{"response":{"errors":{"error":{"code":"E-0160","text":"No displayable messages found"}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fixes, err := parseSpotFeed([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseSpotFeed() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSpotFeed() error = %v", err)
			}
			if len(fixes) != tt.wantFixes {
				t.Fatalf("expected %d fixes, got %d", tt.wantFixes, len(fixes))
			}
			if tt.check != nil {
				tt.check(t, fixes)
			}
		})
	}
}

// encodeDeltas is the inverse of decodeDeltas.
func encodeDeltas(values []int64, dim int) string {
	var sb strings.Builder
	prev := make([]int64, dim)
	for i, v := range values {
		delta := v - prev[i%dim]
		prev[i%dim] = v
		u := delta << 1
		if delta < 0 {
			u = ^u
		}
		for u >= 0x20 {
			sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
			u >>= 5
		}
		sb.WriteByte(byte(u + 63))
	}
	return sb.String()
}

func TestDecodeDeltas(t *testing.T) {
	t.Parallel()

	values := []int64{4550000, 625000, 4550100, 624900, 4549000, 626000}
	got, err := decodeDeltas(encodeDeltas(values, 2), 2)
	if err != nil {
		t.Fatalf("decodeDeltas() error = %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("decodeDeltas() = %v, want %v", got, values)
		}
	}

	// Known polyline sample.
	got, err = decodeDeltas("_p~iF~ps|U", 2)
	if err != nil || got[0] != 3850000 || got[1] != -12020000 {
		t.Errorf("decodeDeltas(sample) = %v, %v", got, err)
	}

	if _, err := decodeDeltas("_", 1); err == nil {
		t.Error("expected an error for a truncated value")
	}
}

func TestDecodeSkylinesFlight(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 0, 5, 0, 0, time.UTC)
	flight := skylinesFlight{
		// 23:59:00 of the previous day, then 00:01:00.
		BarogramT: encodeDeltas([]int64{86340, 60}, 1),
		BarogramH: encodeDeltas([]int64{1000, 1010}, 1),
		Points:    encodeDeltas([]int64{4550000, 625000, 4550100, 625100}, 2),
		Geoid:     47.4,
	}

	fixes, err := decodeSkylinesFlight(flight, now)
	if err != nil {
		t.Fatalf("decodeSkylinesFlight() error = %v", err)
	}
	if len(fixes) != 2 {
		t.Fatalf("expected 2 fixes, got %d", len(fixes))
	}
	midnight := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).Unix()
	if fixes[0].TimeSec != midnight-60 || fixes[1].TimeSec != midnight+60 {
		t.Errorf("unexpected times %d, %d", fixes[0].TimeSec, fixes[1].TimeSec)
	}
	if fixes[1].Lat != 45.501 || fixes[1].Lon != 6.251 || fixes[1].Alt != 1057 {
		t.Errorf("unexpected fix %+v", fixes[1])
	}
}

func TestFlymasterBatches(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		queries []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("trackers")
		mu.Lock()
		queries = append(queries, q)
		mu.Unlock()
		if strings.Contains(q, `"101"`) {
			_, _ = w.Write([]byte(`{"101":[{"ai":1500,"la":2730000,"lo":375000,"d":1700000000,"v":36}]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := &config.VendorConfig{URL: server.URL, BatchSize: 2}
	s := NewFlymasterStrategy(cfg, NewClient("flymaster", cfg))
	devices := []Device{
		{PilotID: 1, Account: "101"},
		{PilotID: 2, Account: "102"},
		{PilotID: 3, Account: "103"},
		{PilotID: 4, Account: "not-a-number"},
	}
	result := newFetchCycleResult(testNowSec)

	if err := s.Fetch(context.Background(), devices, result); err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	mu.Lock()
	if len(queries) != 2 {
		t.Errorf("expected 2 batched requests, got %d", len(queries))
	}
	mu.Unlock()
	track := result.Deltas[1]
	if track.Len() != 1 || track.Lat[0] != 45.5 || track.Lon[0] != 6.25 {
		t.Errorf("unexpected track %+v", track)
	}
	if len(result.Contacted) != 4 {
		t.Errorf("expected every device to be contacted, got %d", len(result.Contacted))
	}
	if !errors.Is(result.DeviceErrors[4], ErrInvalidAccount) {
		t.Errorf("expected an invalid account for pilot 4, got %v", result.DeviceErrors[4])
	}
}

type fakeQueue struct {
	msgs map[string][][]byte
}

func (q *fakeQueue) DrainQueue(_ context.Context, queue string) ([][]byte, error) {
	msgs := q.msgs[queue]
	delete(q.msgs, queue)
	return msgs, nil
}

func TestPushStrategies(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{msgs: map[string][][]byte{
		"zoleo": {
			[]byte(`{"imei":"300434","lat":45.1,"lon":6.1,"altitude":1000,"time":1700000000,"battery":5}`),
			[]byte(`{"imei":"999999","lat":1,"lon":1,"time":1700000000}`),
			[]byte(`not json`),
		},
		"meshbir": {
			[]byte(`{"type":"position","user_id":"ABC","lat":46,"lon":7,"alt":800,"time":1700000000000}`),
			[]byte(`{"type":"message","user_id":"abc","lat":46,"lon":7,"time":1700000060000,"message":"hello"}`),
		},
	}}
	devices := []Device{{PilotID: 1, Account: "300434"}, {PilotID: 2, Account: "abc"}, {PilotID: 3, Account: "idle"}}

	zoleo := newFetchCycleResult(testNowSec)
	if err := NewZoleoStrategy(queue).Fetch(context.Background(), devices, zoleo); err != nil {
		t.Fatalf("zoleo Fetch() = %v", err)
	}
	if len(zoleo.Contacted) != 1 || zoleo.Deltas[1].Len() != 1 {
		t.Errorf("expected a single contacted zoleo device, got %v", zoleo.Contacted)
	}
	if !livetrack.IsLowBatFix(zoleo.Deltas[1].Flags[0]) {
		t.Error("expected the low battery flag")
	}

	meshbir := newFetchCycleResult(testNowSec)
	if err := NewMeshbirStrategy(queue).Fetch(context.Background(), devices, meshbir); err != nil {
		t.Fatalf("meshbir Fetch() = %v", err)
	}
	track := meshbir.Deltas[2]
	if track.Len() != 2 {
		t.Fatalf("expected 2 meshbir fixes, got %d", track.Len())
	}
	if extra, ok := track.ExtraAt(1); !ok || extra.Message != "hello" {
		t.Errorf("expected the message on the second fix, got %+v", extra)
	}
	if len(queue.msgs) != 0 {
		t.Errorf("expected drained queues, got %v", queue.msgs)
	}
}

type fakeSource struct {
	tracked   map[string]struct{}
	positions map[string][]models.Position
}

func (s *fakeSource) RegisterTrackedIDs(ids map[string]struct{}) { s.tracked = ids }

func (s *fakeSource) DrainPositions() map[string][]models.Position {
	p := s.positions
	s.positions = nil
	return p
}

func TestOgnStrategy(t *testing.T) {
	t.Parallel()

	source := &fakeSource{positions: map[string][]models.Position{
		"3C6742": {{ID: "3C6742", Lat: 50.38, Lon: 9.43, Alt: 3413, TimeSec: testNowSec, Course: 223, Speed: 589}},
	}}
	devices := []Device{{PilotID: 1, Account: "3c6742"}, {PilotID: 2, Account: "DD1234"}, {PilotID: 3, Account: "bad"}}
	result := newFetchCycleResult(testNowSec)

	if err := NewOgnStrategy(source).Fetch(context.Background(), devices, result); err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if len(source.tracked) != 2 {
		t.Errorf("expected 2 tracked ids, got %v", source.tracked)
	}
	if result.Deltas[1].Len() != 1 || result.Deltas[2] != nil {
		t.Errorf("unexpected deltas %v", result.Deltas)
	}
	if _, ok := result.Contacted[2]; !ok {
		t.Error("expected the device without positions to be contacted")
	}
	if !errors.Is(result.DeviceErrors[3], ErrInvalidAccount) {
		t.Errorf("expected an invalid account, got %v", result.DeviceErrors[3])
	}
}

func TestAviantFleetRefresh(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":"d1","name":"Drone 1","latitude":59.9,"longitude":10.7,"altitude":120,"timestamp":"2023-11-14T22:13:00Z"},
			{"id":"d2","latitude":59.8,"longitude":10.6,"altitude":90,"timestamp":"2023-11-14T22:12:00Z"},
			{"id":"","latitude":1,"longitude":1,"timestamp":"2023-11-14T22:12:00Z"}
		]`))
	}))
	defer server.Close()

	cfg := &config.VendorConfig{URL: server.URL, Token: "secret"}
	r := roster.New()
	r.Fleets[AviantFleetName] = &roster.Fleet{
		Name:    AviantFleetName,
		Tracker: roster.Tracker{Account: "operator", Enabled: true},
		Ufos:    map[string]*livetrack.LiveTrack{},
	}
	f := NewFleetFetcher(NewAviantStrategy(cfg, NewClient(AviantFleetName, cfg)), r, time.Minute, WithFetcherClock(fixedClock))

	result := f.Refresh(context.Background(), 5*time.Second)

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors %v", result.Errors)
	}
	if len(result.Deltas) != 2 || result.Deltas["d1"].Name != "Drone 1" || result.Deltas["d2"].Name != "d2" {
		t.Errorf("unexpected deltas %v", result.Deltas)
	}
	fleet := r.Fleets[AviantFleetName]
	if fleet.NumRequests != 1 || fleet.LastFixSec != time.Date(2023, 11, 14, 22, 13, 0, 0, time.UTC).Unix() {
		t.Errorf("unexpected fleet state %+v", fleet.Tracker)
	}
	if fleet.NextFetchSec <= testNowSec {
		t.Errorf("expected the next fetch after the refresh, got %d", fleet.NextFetchSec)
	}

	// Not due anymore.
	if again := f.Refresh(context.Background(), 5*time.Second); again.Contacted {
		t.Error("expected the fleet to be skipped until its next fetch time")
	}
}
