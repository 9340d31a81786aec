package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wasteops/wasteops/internal/config"
	"github.com/wasteops/wasteops/internal/database"
	"github.com/wasteops/wasteops/internal/database/seed"
	"github.com/wasteops/wasteops/internal/models"
	"github.com/wasteops/wasteops/internal/repository"
	"github.com/wasteops/wasteops/internal/services/cycles"
	"github.com/wasteops/wasteops/internal/services/lots"
	"github.com/wasteops/wasteops/internal/services/planning"
	"github.com/wasteops/wasteops/internal/util"
)

// app wires the services behind the operator commands.
type app struct {
	db  *database.DB
	cfg *config.Config
	log *zap.Logger
	out io.Writer

	parks    *repository.ParkRepository
	lots     *lots.Service
	cycles   *cycles.Service
	planning *planning.Service
}

func newApp(db *database.DB, cfg *config.Config, log *zap.Logger, out io.Writer) *app {
	if log == nil {
		log = zap.NewNop()
	}
	return &app{
		db:       db,
		cfg:      cfg,
		log:      log,
		out:      out,
		parks:    repository.NewParkRepository(db.DB),
		lots:     lots.NewService(db, cfg.Lots, log),
		cycles:   cycles.NewService(db, cfg.Cycles, log),
		planning: planning.NewService(db, cfg.Planning, log),
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	if err := a.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("checking database: %w", err)
	}

	if cmd == "migrate" {
		return a.migrate(ctx, args)
	}

	if _, err := database.Migrate(ctx, a.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if cmd == "seed" {
		return a.seed(ctx)
	}

	park, err := a.parks.GetByCode(ctx, nil, a.cfg.Park.Code)
	if err != nil {
		return fmt.Errorf("park %s: %w", a.cfg.Park.Code, err)
	}

	switch cmd {
	case "lots":
		return a.listLots(ctx, park, args)
	case "assign":
		if err := needArgs(cmd, args, 2); err != nil {
			return err
		}
		lot, err := a.lots.AssignEntry(ctx, args[0], args[1], a.cfg.Park.Operator)
		if err != nil {
			return err
		}
		a.printLot(lot)
	case "start":
		if err := needArgs(cmd, args, 1); err != nil {
			return err
		}
		target, err := a.lots.FindLot(ctx, park, args[0])
		if err != nil {
			return err
		}
		lot, err := a.lots.StartTreatment(ctx, target.ID, a.cfg.Park.Operator)
		if err != nil {
			return err
		}
		a.printLot(lot)
	case "close":
		return a.closeLot(ctx, park, args)
	case "release":
		if err := needArgs(cmd, args, 1); err != nil {
			return err
		}
		area, err := a.lots.ReleaseZone(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "area %s released (blocked: %t)\n", area.Code, area.IsBlocked)
	case "cycles":
		return a.recalculateCycles(ctx, park, args)
	case "score":
		return a.score(ctx, park)
	case "ranking":
		return a.ranking(ctx, park, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (a *app) migrate(ctx context.Context, args []string) error {
	m, err := database.NewMigrator(a.db)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "up":
		result, err := m.MigrateUp(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "schema at version %d (%d applied)\n", result.TargetVersion, len(result.Applied))
	case "down":
		result, err := m.MigrateDown(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "rolled back to version %d\n", result.TargetVersion)
	case "status":
		status, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tDESCRIPTION\tAPPLIED")
		for _, mig := range status {
			applied := "-"
			if mig.Applied {
				applied = mig.AppliedAt.Format(util.DateTimeFormat)
			}
			fmt.Fprintf(w, "%03d\t%s\t%s\n", mig.Version, mig.Description, applied)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	return nil
}

func (a *app) seed(ctx context.Context) error {
	if _, err := a.parks.GetByCode(ctx, nil, a.cfg.Park.Code); err == nil {
		a.log.Warn("park already exists, skipping seed generation", zap.String("park", a.cfg.Park.Code))
		return nil
	} else if !models.IsNotFound(err) {
		return err
	}

	summary, err := seed.NewGenerator(a.db, seed.DefaultConfig(a.cfg.Park.Code, a.cfg.Park.Name), a.log).Generate(ctx)
	if err != nil {
		return fmt.Errorf("generating seed data: %w", err)
	}

	fmt.Fprintf(a.out, "park %s: %d areas, %d clients, %d entries, %d orders\n",
		summary.Park.Code, summary.Areas, summary.Clients, summary.Entries, summary.Orders)
	return nil
}

func (a *app) listLots(ctx context.Context, park *models.Park, args []string) error {
	filter := models.LotFilter{ParkID: park.ID}
	for _, s := range args {
		status := models.LotStatus(s)
		if !status.Valid() {
			return fmt.Errorf("invalid lot status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	list, err := a.lots.ListLots(ctx, filter, models.Pagination{Page: 1, PageSize: 100})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LOT\tSTATUS\tLER\tINPUT KG\tRAW\tLQI")
	for _, l := range list.Lots {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\t%s\n",
			l.LotNumber, l.Status, []string(l.AllowedLERCodes), l.TotalInputKg.StringFixed(2),
			formatFloat(l.RawGrade), formatLQI(l))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d lots\n", len(list.Lots), list.Total)
	return nil
}

func (a *app) closeLot(ctx context.Context, park *models.Park, args []string) error {
	if err := needArgs("close", args, 3); err != nil {
		return err
	}

	grade, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid grade %q: %w", args[1], err)
	}
	output, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("invalid output kg %q: %w", args[2], err)
	}

	target, err := a.lots.FindLot(ctx, park, args[0])
	if err != nil {
		return err
	}

	lot, err := a.lots.CloseLot(ctx, lots.CloseLotInput{
		LotID:            target.ID,
		TransformedGrade: grade,
		TotalOutputKg:    output,
	})
	if err != nil {
		return err
	}
	a.printLot(lot)
	return nil
}

func (a *app) recalculateCycles(ctx context.Context, park *models.Park, args []string) error {
	within := int(a.cfg.Planning.CycleWindowDays)
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid day count %q: %w", args[0], err)
		}
		within = n
	}

	all, err := a.cycles.RecalculatePark(ctx, park.ID)
	if err != nil {
		return err
	}

	upcoming, err := a.cycles.Upcoming(ctx, park.ID, time.Now().UTC(), within)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d supplier cycles recalculated; %d due within %d days\n", len(all), len(upcoming), within)

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tENTRIES\tAVG DAYS\tLAST\tNEXT\tCONFIDENCE")
	for _, c := range upcoming {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%.3f\n",
			c.ClientID, c.EntryCount, formatFloat(c.AvgIntervalDays),
			util.FormatDatePtr(c.LastEntryDate), util.FormatDatePtr(c.NextPredictedDate), c.Confidence)
	}
	return w.Flush()
}

func (a *app) score(ctx context.Context, park *models.Park) error {
	results, err := a.planning.CalculatePlanningScores(ctx, park.ID)
	if err != nil {
		return err
	}

	bands := make(map[planning.Band]int)
	for _, r := range results {
		bands[r.Bucket]++
	}
	fmt.Fprintf(a.out, "%d orders scored: %d high, %d medium, %d low\n",
		len(results), bands[planning.BandHigh], bands[planning.BandMedium], bands[planning.BandLow])
	return nil
}

func (a *app) ranking(ctx context.Context, park *models.Park, args []string) error {
	var limit uint64 = 20
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid limit %q: %w", args[0], err)
		}
		limit = n
	}

	results, err := a.planning.RankedOrders(ctx, park.ID, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tPRIORITY\tSCORE\tBAND\tPRIO\tSLA\tCYCLE")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%.0f\t%.0f\t%.0f\n",
			r.OrderNumber, r.Priority, r.Score, r.Bucket,
			r.Breakdown.Priority, r.Breakdown.SLA, r.Breakdown.Cycle)
	}
	return w.Flush()
}

func (a *app) printLot(l *models.Lot) {
	fmt.Fprintf(a.out, "%s  %s  input %s kg  raw %s  yield %s  lqi %s\n",
		l.LotNumber, l.Status, l.TotalInputKg.StringFixed(2),
		formatFloat(l.RawGrade), formatFloat(l.YieldRate), formatLQI(l))
}

func needArgs(cmd string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s needs %d argument(s), got %d", cmd, n, len(args))
	}
	return nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatLQI(l *models.Lot) string {
	if l.LotQualityIndex == nil || l.LQIGrade == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f (%s)", *l.LotQualityIndex, *l.LQIGrade)
}
