package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import venues or events from CSV",
}

var importVenuesCmd = &cobra.Command{
	Use:   "venues <csv>",
	Short: "Import venue rows (id,name,latitude,longitude,capacity)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open venues csv")
		}
		defer f.Close()

		venues, err := parseVenuesCSV(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, v := range venues {
			if err := st.UpsertVenue(ctx, v); err != nil {
				return err
			}
		}

		zap.L().Info("venues imported", zap.Int("count", len(venues)), zap.String("csv", args[0]))
		return nil
	},
}

var importEventsCmd = &cobra.Command{
	Use:   "events <csv>",
	Short: "Import event occurrences (id,venue_id,name,category,start_at)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open events csv")
		}
		defer f.Close()

		events, err := parseEventsCSV(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, e := range events {
			if err := st.UpsertEvent(ctx, e); err != nil {
				return err
			}
		}

		zap.L().Info("events imported", zap.Int("count", len(events)), zap.String("csv", args[0]))
		return nil
	},
}

// parseVenuesCSV reads venue rows. The header row is required; capacity may
// be blank.
func parseVenuesCSV(r io.Reader) ([]model.Venue, error) {
	rows, err := readCSV(r, []string{"id", "name", "latitude", "longitude", "capacity"})
	if err != nil {
		return nil, eris.Wrap(err, "venues csv")
	}

	var venues []model.Venue
	for i, row := range rows {
		lat, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "venues csv row %d: latitude", i+2)
		}
		lon, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "venues csv row %d: longitude", i+2)
		}

		v := model.Venue{ID: row[0], Name: row[1], Latitude: lat, Longitude: lon}
		if v.ID == "" {
			return nil, eris.Errorf("venues csv row %d: empty id", i+2)
		}
		if row[4] != "" {
			capacity, err := strconv.Atoi(row[4])
			if err != nil {
				return nil, eris.Wrapf(err, "venues csv row %d: capacity", i+2)
			}
			v.Capacity = &capacity
		}
		venues = append(venues, v)
	}
	return venues, nil
}

// parseEventsCSV reads event occurrence rows. start_at is RFC 3339 and may be
// blank: occurrences without a start time are imported but never collected.
func parseEventsCSV(r io.Reader) ([]model.EventOccurrence, error) {
	rows, err := readCSV(r, []string{"id", "venue_id", "name", "category", "start_at"})
	if err != nil {
		return nil, eris.Wrap(err, "events csv")
	}

	var events []model.EventOccurrence
	for i, row := range rows {
		e := model.EventOccurrence{ID: row[0], VenueID: row[1], Name: row[2], Category: row[3]}
		if e.ID == "" || e.VenueID == "" {
			return nil, eris.Errorf("events csv row %d: empty id or venue_id", i+2)
		}
		if row[4] != "" {
			start, err := time.Parse(time.RFC3339, row[4])
			if err != nil {
				return nil, eris.Wrapf(err, "events csv row %d: start_at", i+2)
			}
			start = start.UTC()
			e.Start = &start
		}
		events = append(events, e)
	}
	return events, nil
}

func readCSV(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	got, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	if len(got) != len(header) {
		return nil, eris.Errorf("expected %d columns, got %d", len(header), len(got))
	}
	for i, name := range header {
		if !strings.EqualFold(strings.TrimSpace(got[i]), name) {
			return nil, eris.Errorf("expected column %q, got %q", name, got[i])
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "read rows")
	}
	return rows, nil
}

func init() {
	importCmd.AddCommand(importVenuesCmd)
	importCmd.AddCommand(importEventsCmd)
	rootCmd.AddCommand(importCmd)
}
