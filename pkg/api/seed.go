package api

import (
	"net/http"
	"time"

	"github.com/l10dash/l10dash/pkg/parser"
	"github.com/l10dash/l10dash/pkg/store"
)

// sampleArchives backs the dev-only seeding endpoint so the dashboard
// shows data before the first scan pass has run. Names follow the
// production archive grammar; ages place every row inside the default
// 24-hour stats window.
var sampleArchives = []struct {
	folder  string
	archive string
	age     time.Duration
}{
	{
		folder:  "104727",
		archive: "IGSJ_PB-65984_675-24109-0002-TS2_1830326000021_F_FLA_20260204T161044Z.zip",
		age:     2 * time.Hour,
	},
	{
		folder:  "104845",
		archive: "IGSJ_675-24109-0002-TS1_1830226000123_F_FLA_20260205T102044Z.zip",
		age:     4 * time.Hour,
	},
	{
		folder:  "105012",
		archive: "IGSJ_675-24109-0010-TS2_1830526000035_P_FLB_20260205T120000Z.zip",
		age:     150 * time.Minute,
	},
	{
		folder:  "105123",
		archive: "IGSJ_675-24109-0002-TS2_1830326000022_P_FLA_20260205T131000Z.zip",
		age:     time.Hour,
	},
	{
		folder:  "105234",
		archive: "IGSJ_675-24109-0000-TS1_1830125000269_F_FCT_20260205T140000Z.zip",
		age:     5 * time.Minute,
	},
}

// handleSeedSample inserts the sample rows through the normal dedup
// path, so repeated calls are no-ops. Registered only when
// server.dev_endpoints is enabled.
func (s *server) handleSeedSample(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	inserted := 0

	for _, sample := range sampleArchives {
		parsed, err := parser.Parse(sample.archive)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{err.Error()})

			return
		}

		ok, err := s.store.InsertResult(r.Context(), &store.TestResult{
			FolderName:      sample.folder,
			ArchiveName:     sample.archive,
			Model:           parsed.Model,
			Serial:          parsed.Serial,
			Outcome:         string(parsed.Outcome),
			Station:         parsed.Station,
			SourceTimestamp: parsed.SourceTimestamp,
			ObservedAt:      now.Add(-sample.age),
			IngestedAt:      now,
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{err.Error()})

			return
		}

		if ok {
			inserted++
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{"inserted": inserted})
}
