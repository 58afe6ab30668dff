package world_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"corridor-server/internal/shared/database/dbtest"
	"corridor-server/internal/world"
)

func seedWorld(t *testing.T) *world.Repository {
	t.Helper()
	db := dbtest.Open(t)

	dbtest.MustExec(t, db, `INSERT INTO locations (location_id, name, location_type) VALUES
		(1, 'Aurora', 'colony'), (2, 'Vega Station', 'space_station'), (3, 'Rim Outpost', 'outpost')`)
	dbtest.MustExec(t, db, `INSERT INTO corridors (corridor_id, name, origin_location, destination_location, travel_time, fuel_cost)
		VALUES (10, 'Aurora-Vega', 1, 2, 600, 20), (11, 'Vega-Rim', 2, 3, 900, 30)`)
	dbtest.MustExec(t, db, `INSERT INTO characters (user_id, name, callsign, current_location, location_status)
		VALUES (100, 'Ada', 'ADAX1234', NULL, 'traveling'), (101, 'Bo', 'BOBO5678', 3, 'docked')`)
	dbtest.MustExec(t, db, `INSERT INTO travel_sessions (user_id, corridor_id, origin_location, destination_location, start_time, end_time, temp_channel_id)
		VALUES (100, 10, 1, 2, NOW(), NOW() + INTERVAL '10 minutes', 'transit-x')`)

	return world.NewRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDestroyCorridorKillsPassengers(t *testing.T) {
	repo := seedWorld(t)
	ctx := context.Background()

	report, err := repo.DestroyCorridor(ctx, 10)
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(report.Killed) != 1 || report.Killed[0] != 100 {
		t.Fatalf("killed=%v", report.Killed)
	}
	if len(report.TransitChannels) != 1 || report.TransitChannels[0] != "transit-x" {
		t.Fatalf("channels=%v", report.TransitChannels)
	}

	c, err := repo.GetCorridor(ctx, 10)
	if err != nil || c != nil {
		t.Fatalf("corridor still present: %+v err=%v", c, err)
	}
}

func TestDestroyLocationCascades(t *testing.T) {
	repo := seedWorld(t)
	ctx := context.Background()

	report, err := repo.DestroyLocation(ctx, 3)
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(report.Killed) != 1 || report.Killed[0] != 101 {
		t.Fatalf("killed=%v", report.Killed)
	}

	locations, corridors, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if locations != 2 || corridors != 1 {
		t.Fatalf("locations=%d corridors=%d want 2,1", locations, corridors)
	}
}
