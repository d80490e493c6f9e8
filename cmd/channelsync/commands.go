package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/njoerd114/channelsync/internal/inventory"
	"github.com/njoerd114/channelsync/internal/manager"
	"github.com/njoerd114/channelsync/internal/model"
)

// --- Rates -------------------------------------------------------------------

// rateInputFile is the YAML shape accepted by rates and preview:
//
//	inputs:
//	  - room_type_id: dbl
//	    start: 2026-10-20
//	    end: 2026-10-22
//	    base_rate: 120.50
//	    currency: EUR
//	    availability: 5
type rateInputFile struct {
	Inputs []struct {
		RoomTypeID   string          `yaml:"room_type_id"`
		Start        time.Time       `yaml:"start"`
		End          time.Time       `yaml:"end"`
		BaseRate     decimal.Decimal `yaml:"base_rate"`
		Currency     string          `yaml:"currency"`
		Availability int             `yaml:"availability"`
	} `yaml:"inputs"`
}

func readRateInputs(path string) ([]model.RateInput, error) {
	var f rateInputFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	out := make([]model.RateInput, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		end := in.End
		if end.IsZero() {
			end = in.Start
		}
		out = append(out, model.RateInput{
			RoomTypeID:   in.RoomTypeID,
			DateRange:    model.DateRange{Start: model.Day(in.Start), End: model.Day(end)},
			BaseRate:     in.BaseRate,
			Currency:     in.Currency,
			Availability: in.Availability,
		})
	}
	return out, nil
}

func runRates(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("rates", flag.ExitOnError)
	property := fs.String("property", "", "property id")
	input := fs.String("input", "", "YAML file of rate inputs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property, "--input", *input); err != nil {
		return err
	}
	inputs, err := readRateInputs(*input)
	if err != nil {
		return err
	}
	results, err := a.rates.Sync(ctx, *property, inputs)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func runPreview(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	property := fs.String("property", "", "property id")
	input := fs.String("input", "", "YAML file of rate inputs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property, "--input", *input); err != nil {
		return err
	}
	inputs, err := readRateInputs(*input)
	if err != nil {
		return err
	}
	previews, err := a.rates.PreviewRateSync(ctx, *property, inputs)
	if err != nil {
		return err
	}
	return printJSON(previews)
}

// --- Conflicts ---------------------------------------------------------------

func runConflicts(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("conflicts", flag.ExitOnError)
	property := fs.String("property", "", "property id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property); err != nil {
		return err
	}
	conflicts, err := a.inventory.GetPendingConflicts(ctx, *property)
	if err != nil {
		return err
	}
	return printJSON(conflicts)
}

func runResolve(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	property := fs.String("property", "", "property id")
	id := fs.String("id", "", "conflict id")
	value := fs.Int("value", -1, "availability to apply")
	accept := fs.Bool("accept", false, "apply the suggested resolution")
	ignore := fs.Bool("ignore", false, "close the conflict without changing anything")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property, "--id", *id); err != nil {
		return err
	}
	r, err := resolution(*value, *accept, *ignore)
	if err != nil {
		return err
	}
	c, err := a.inventory.ResolveConflictManually(ctx, *property, *id, r)
	if c.ID != "" {
		if perr := printJSON(c); perr != nil {
			return perr
		}
	}
	return err
}

// resolution builds the resolution for exactly one of the value, accept and
// ignore flags. A negative value means the flag was not given.
func resolution(value int, accept, ignore bool) (inventory.Resolution, error) {
	set := 0
	for _, b := range []bool{value >= 0, accept, ignore} {
		if b {
			set++
		}
	}
	if set != 1 {
		return inventory.Resolution{}, errors.New("exactly one of --value, --accept or --ignore is required")
	}
	switch {
	case ignore:
		return inventory.Resolution{Action: inventory.ActionIgnore}, nil
	case accept:
		return inventory.Resolution{Action: inventory.ActionResolve}, nil
	default:
		return inventory.Resolution{Action: inventory.ActionResolve, Value: &value}, nil
	}
}

// --- Rules -------------------------------------------------------------------

func runRules(ctx context.Context, a *app, args []string) error {
	action, args, err := splitAction("rules", args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("rules "+action, flag.ExitOnError)
	property := fs.String("property", "", "property id")
	file := fs.String("file", "", "YAML file holding one pricing rule")
	id := fs.String("id", "", "rule id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property); err != nil {
		return err
	}

	switch action {
	case "list":
		rules, err := a.rates.GetPricingRules(ctx, *property)
		if err != nil {
			return err
		}
		return printJSON(rules)
	case "add", "update":
		var r model.PricingRule
		if err := required("--file", *file); err != nil {
			return err
		}
		if err := readYAML(*file, &r); err != nil {
			return err
		}
		if *id != "" {
			r.ID = *id
		}
		if action == "update" {
			if err := a.rates.UpdatePricingRule(ctx, *property, r); err != nil {
				return err
			}
			return printJSON(r)
		}
		added, err := a.rates.AddPricingRule(ctx, *property, r)
		if err != nil {
			return err
		}
		return printJSON(added)
	default: // delete
		if err := required("--id", *id); err != nil {
			return err
		}
		return a.rates.DeletePricingRule(ctx, *property, *id)
	}
}

func runAllotments(ctx context.Context, a *app, args []string) error {
	action, args, err := splitAction("allotments", args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("allotments "+action, flag.ExitOnError)
	property := fs.String("property", "", "property id")
	file := fs.String("file", "", "YAML file holding one allotment rule")
	id := fs.String("id", "", "rule id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property); err != nil {
		return err
	}

	switch action {
	case "list":
		rules, err := a.inventory.GetAllotmentRules(ctx, *property)
		if err != nil {
			return err
		}
		return printJSON(rules)
	case "add", "update":
		var r model.AllotmentRule
		if err := required("--file", *file); err != nil {
			return err
		}
		if err := readYAML(*file, &r); err != nil {
			return err
		}
		if *id != "" {
			r.ID = *id
		}
		if action == "update" {
			if err := a.inventory.UpdateAllotmentRule(ctx, *property, r); err != nil {
				return err
			}
			return printJSON(r)
		}
		added, err := a.inventory.AddAllotmentRule(ctx, *property, r)
		if err != nil {
			return err
		}
		return printJSON(added)
	default: // delete
		if err := required("--id", *id); err != nil {
			return err
		}
		return a.inventory.DeleteAllotmentRule(ctx, *property, *id)
	}
}

// splitAction takes the list/add/update/delete action off the front of args.
func splitAction(cmd string, args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%s: action required (list, add, update or delete)", cmd)
	}
	switch args[0] {
	case "list", "add", "update", "delete":
		return args[0], args[1:], nil
	}
	return "", nil, fmt.Errorf("%s: unknown action %q", cmd, args[0])
}

// --- History -----------------------------------------------------------------

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	property := fs.String("property", "", "property id")
	kind := fs.String("kind", string(model.HistoryInventory), "inventory or rate")
	limit := fs.Int("limit", 20, "number of results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property); err != nil {
		return err
	}
	switch model.HistoryKind(*kind) {
	case model.HistoryInventory:
		h, err := a.inventory.GetSyncHistory(ctx, *property, *limit)
		if err != nil {
			return err
		}
		return printJSON(h)
	case model.HistoryRate:
		h, err := a.rates.GetSyncHistory(ctx, *property, *limit)
		if err != nil {
			return err
		}
		return printJSON(h)
	}
	return fmt.Errorf("unknown history kind %q", *kind)
}

// --- Reservations ------------------------------------------------------------

func runReservations(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("reservations", flag.ExitOnError)
	property := fs.String("property", "", "property id")
	days := fs.Int("days", 0, "only reservations within the next N days (0 for all)")
	stored := fs.Bool("stored", false, "list reservations already imported instead of fetching")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property); err != nil {
		return err
	}
	if *stored {
		list, err := a.store.Reservations(ctx, *property)
		if err != nil {
			return err
		}
		return printJSON(list)
	}
	var window *model.DateRange
	if *days > 0 {
		w := model.NewDateRange(time.Now(), *days)
		window = &w
	}
	batch, err := a.manager.FetchAllReservations(ctx, *property, window)
	if err != nil {
		return err
	}
	return printJSON(batch)
}

type reservationFlags struct {
	property, channel, reservation *string
}

func parseReservationFlags(name string, args []string, extra func(fs *flag.FlagSet)) (reservationFlags, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	f := reservationFlags{
		property:    fs.String("property", "", "property id"),
		channel:     fs.String("channel", "", "channel name"),
		reservation: fs.String("reservation", "", "channel reservation id"),
	}
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	return f, required("--property", *f.property, "--channel", *f.channel, "--reservation", *f.reservation)
}

func printAction(res manager.ActionResult) error {
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

func runConfirm(ctx context.Context, a *app, args []string) error {
	f, err := parseReservationFlags("confirm", args, nil)
	if err != nil {
		return err
	}
	return printAction(a.manager.ConfirmReservation(ctx, *f.channel, *f.reservation, *f.property))
}

func runDecline(ctx context.Context, a *app, args []string) error {
	var reason *string
	f, err := parseReservationFlags("decline", args, func(fs *flag.FlagSet) {
		reason = fs.String("reason", "", "reason sent to the channel")
	})
	if err != nil {
		return err
	}
	return printAction(a.manager.DeclineReservation(ctx, *f.channel, *f.reservation, *f.property, *reason))
}

func runMessage(ctx context.Context, a *app, args []string) error {
	var body *string
	f, err := parseReservationFlags("message", args, func(fs *flag.FlagSet) {
		body = fs.String("body", "", "message text; omit to list the thread")
	})
	if err != nil {
		return err
	}
	if *body == "" {
		msgs, err := a.manager.GuestMessages(ctx, *f.channel, *f.reservation, *f.property)
		if err != nil {
			return err
		}
		return printJSON(msgs)
	}
	return printAction(a.manager.SendGuestMessage(ctx, *f.channel, *f.reservation, *f.property, *body))
}

// --- Connections -------------------------------------------------------------

func runTestConnections(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("test-connections", flag.ExitOnError)
	property := fs.String("property", "", "property id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required("--property", *property); err != nil {
		return err
	}
	results, err := a.manager.TestAllConnections(ctx, *property)
	if err != nil {
		return err
	}
	if err := printJSON(results); err != nil {
		return err
	}
	for name, r := range results {
		if !r.Success {
			return fmt.Errorf("channel %s failed its connection test: %s", name, r.Message)
		}
	}
	return nil
}

// --- Local inventory ---------------------------------------------------------

// inventoryFile is the YAML shape accepted by "inventory import":
//
//	rows:
//	  - room_type_id: dbl
//	    start: 2026-10-20
//	    end: 2026-10-26
//	    total: 12
//	    available: 7
//	    base_rate: 120.50
//	    currency: EUR
type inventoryFile struct {
	Rows []struct {
		RoomTypeID string          `yaml:"room_type_id"`
		Start      time.Time       `yaml:"start"`
		End        time.Time       `yaml:"end"`
		Total      int             `yaml:"total"`
		Available  int             `yaml:"available"`
		BaseRate   decimal.Decimal `yaml:"base_rate"`
		Currency   string          `yaml:"currency"`
	} `yaml:"rows"`
}

// readInventory expands each row's date span into one record per night.
func readInventory(path, propertyID string) ([]model.LocalInventory, error) {
	var f inventoryFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	var out []model.LocalInventory
	for i, r := range f.Rows {
		if r.RoomTypeID == "" {
			return nil, fmt.Errorf("rows[%d]: room_type_id is required", i)
		}
		if r.Available < 0 || r.Available > r.Total {
			return nil, fmt.Errorf("rows[%d]: available %d outside 0..%d", i, r.Available, r.Total)
		}
		end := r.End
		if end.IsZero() {
			end = r.Start
		}
		span := model.DateRange{Start: r.Start, End: end}
		if err := span.Validate(); err != nil {
			return nil, fmt.Errorf("rows[%d]: %w", i, err)
		}
		for _, d := range span.Days() {
			out = append(out, model.LocalInventory{
				PropertyID: propertyID,
				RoomTypeID: r.RoomTypeID,
				Date:       d,
				Total:      r.Total,
				Available:  r.Available,
				BaseRate:   r.BaseRate,
				Currency:   r.Currency,
			})
		}
	}
	return out, nil
}

// runInventory handles "inventory show" and "inventory import".
func runInventory(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || (args[0] != "show" && args[0] != "import") {
		return errors.New("inventory: action required (show or import)")
	}
	action := args[0]
	fs := flag.NewFlagSet("inventory "+action, flag.ExitOnError)
	property := fs.String("property", "", "property id")
	file := fs.String("file", "", "YAML file of inventory rows (import)")
	days := fs.Int("days", 30, "nights to show from today (show)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := required("--property", *property); err != nil {
		return err
	}
	if action == "show" {
		rows, err := a.store.LocalInventory(ctx, *property, nil, model.NewDateRange(time.Now(), *days))
		if err != nil {
			return err
		}
		return printJSON(rows)
	}
	if err := required("--file", *file); err != nil {
		return err
	}
	rows, err := readInventory(*file, *property)
	if err != nil {
		return err
	}
	if err := a.store.UpsertLocalInventory(ctx, rows); err != nil {
		return err
	}
	fmt.Printf("imported %d inventory rows for %s\n", len(rows), *property)
	return nil
}

// --- Helpers -----------------------------------------------------------------

// required takes flag name/value pairs and reports the first empty value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}

// readYAML decodes one document from path into v, rejecting unknown keys.
func readYAML(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parsing %q: %w", path, err)
	}
	return nil
}
