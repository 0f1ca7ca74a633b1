package main

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/postgres"
	"github.com/visa2any/fly2any-sub046/internal/infrastructure/observability"
	"github.com/visa2any/fly2any-sub046/pkg/config"
)

// routes carry a rough share of traffic so the ranking has a visible head.
var routes = []struct {
	origin, destination string
	weight              int
}{
	{"JFK", "LAX", 40},
	{"LAX", "JFK", 30},
	{"JFK", "MIA", 25},
	{"ORD", "LAS", 18},
	{"SFO", "SEA", 12},
	{"BOS", "MCO", 10},
	{"ATL", "DFW", 8},
	{"DEN", "PHX", 5},
	{"JFK", "LHR", 4},
	{"LAX", "HNL", 3},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	observability.InitLogger("prewarm-seed", cfg.Env)

	ctx := context.Background()
	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE search_events, saved_searches, cache_coverage`); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	scale := 10
	if v, err := strconv.Atoi(os.Getenv("SEED_SCALE")); err == nil && v > 0 {
		scale = v
	}

	db := goqu.New("postgres", pgClient.DB())
	now := time.Now().UTC()
	rng := rand.New(rand.NewSource(now.UnixNano()))

	var searches, saved []goqu.Record
	for _, r := range routes {
		for i := 0; i < r.weight*scale; i++ {
			depart := now.AddDate(0, 0, 3+rng.Intn(60)).Truncate(24 * time.Hour)
			createdAt := now.Add(-time.Duration(rng.Intn(30*24)) * time.Hour)
			rec := goqu.Record{
				"id":          uuid.New().String(),
				"origin":      r.origin,
				"destination": r.destination,
				"depart_date": depart,
				"return_date": nil,
				"user_id":     nil,
				"created_at":  createdAt,
			}
			if rng.Intn(3) == 0 {
				rec["return_date"] = depart.AddDate(0, 0, 2+rng.Intn(12))
			}
			searches = append(searches, rec)

			if rng.Intn(10) == 0 {
				s := goqu.Record{}
				for k, v := range rec {
					s[k] = v
				}
				s["id"] = uuid.New().String()
				s["user_id"] = "seed-user-" + strconv.Itoa(rng.Intn(50))
				saved = append(saved, s)
			}
		}
	}

	insert(ctx, db, "search_events", searches)
	insert(ctx, db, "saved_searches", saved)

	log.Info().Int("searches", len(searches)).Int("saved_searches", len(saved)).Msg("Seeding completed")
}

func insert(ctx context.Context, db *goqu.Database, table string, records []goqu.Record) {
	const chunk = 500
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		rows := make([]interface{}, 0, end-start)
		for _, r := range records[start:end] {
			rows = append(rows, r)
		}
		query, args, err := db.Insert(table).Prepared(true).Rows(rows...).ToSQL()
		if err != nil {
			log.Fatal().Err(err).Str("table", table).Msg("Failed to build insert")
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			log.Fatal().Err(err).Str("table", table).Msg("Failed to insert seed rows")
		}
	}
}
