// ABOUTME: Subcommand implementations for the lattice CLI
// ABOUTME: Each command resolves a namespace, runs one operation, and prints results

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/lattice/internal/namespace"
	"github.com/2389/lattice/internal/search"
	"github.com/2389/lattice/internal/store"
)

// namespaceFlag registers the shared -ns flag on a command's flag set.
func namespaceFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("LATTICE_NAMESPACE")
	if def == "" {
		def = "default"
	}
	return fs.String("ns", def, "Namespace name")
}

func openNamespace(reg *namespace.Registry, name string) (*namespace.Namespace, error) {
	ns, err := reg.Get(name)
	if err != nil {
		return nil, fmt.Errorf("opening namespace %s: %w", name, err)
	}
	return ns, nil
}

func printThing(thing *store.Thing) {
	cyan := color.New(color.FgCyan)
	cyan.Printf("  %s\n", thing.URL)
	fmt.Printf("  Type:     %s\n", thing.Type)
	if thing.Source != "" {
		fmt.Printf("  Source:   %s\n", thing.Source)
	}
	fmt.Printf("  Created:  %s\n", thing.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated:  %s\n", thing.UpdatedAt.Format(time.RFC3339))
	if len(thing.Data) > 0 {
		data, _ := json.MarshalIndent(thing.Data, "  ", "  ")
		fmt.Printf("  Data:     %s\n", data)
	}
	if thing.Content != "" {
		fmt.Printf("  Content:\n")
		for _, line := range strings.Split(thing.Content, "\n") {
			fmt.Printf("    %s\n", line)
		}
	}
}

func printThingTable(things []*store.Thing, nextCursor string) {
	if len(things) == 0 {
		fmt.Println("  (no things)")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  URL\tTYPE\tCREATED")
	fmt.Fprintln(w, "  ---\t----\t-------")
	for _, thing := range things {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", thing.URL, thing.Type, thing.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()

	if nextCursor != "" {
		fmt.Printf("\n  next cursor: %s\n", nextCursor)
	}
}

func cmdCreate(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	thingType := fs.String("type", "", "Thing type (required)")
	thingURL := fs.String("url", "", "Explicit URL (generated when empty)")
	dataJSON := fs.String("data", "", "Data payload as JSON object")
	content := fs.String("content", "", "Content body")
	source := fs.String("source", "", "Source attribution")
	fs.Parse(args)

	if *thingType == "" {
		return fmt.Errorf("-type is required")
	}

	thing := &store.Thing{
		URL:     *thingURL,
		Type:    *thingType,
		Content: *content,
		Source:  *source,
	}
	if *dataJSON != "" {
		if err := json.Unmarshal([]byte(*dataJSON), &thing.Data); err != nil {
			return fmt.Errorf("parsing -data: %w", err)
		}
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	if err := ns.CreateThing(context.Background(), thing); err != nil {
		return err
	}

	color.Green("Created %s\n", thing.URL)
	return nil
}

func cmdGet(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: lattice get <url>")
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	thing, err := ns.GetThing(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Println()
	printThing(thing)
	fmt.Println()
	return nil
}

func cmdUpdate(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	dataJSON := fs.String("data", "", "Data fields to merge, as JSON object")
	content := fs.String("content", "", "Replacement content")
	clearContent := fs.Bool("clear-content", false, "Set content to empty")
	source := fs.String("source", "", "Replacement source")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: lattice update <url> [flags]")
	}

	var patch store.ThingPatch
	if *dataJSON != "" {
		if err := json.Unmarshal([]byte(*dataJSON), &patch.Data); err != nil {
			return fmt.Errorf("parsing -data: %w", err)
		}
	}
	if *clearContent {
		empty := ""
		patch.Content = &empty
	} else if *content != "" {
		patch.Content = content
	}
	if *source != "" {
		patch.Source = source
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	thing, err := ns.UpdateThing(context.Background(), fs.Arg(0), patch)
	if err != nil {
		return err
	}

	fmt.Println()
	printThing(thing)
	fmt.Println()
	return nil
}

func cmdDelete(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: lattice delete <url>")
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	deleted, err := ns.DeleteThing(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrNotFound
	}

	color.Green("Deleted %s\n", fs.Arg(0))
	return nil
}

func cmdList(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	thingType := fs.String("type", "", "Filter by type")
	prefix := fs.String("prefix", "", "Filter by URL prefix")
	limit := fs.Int("limit", 50, "Page size")
	cursor := fs.String("cursor", "", "Continue from cursor")
	fs.Parse(args)

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	result, err := ns.ListThings(context.Background(), store.ListThingsParams{
		Type:   *thingType,
		Prefix: *prefix,
		Limit:  *limit,
		Cursor: *cursor,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	printThingTable(result.Things, result.NextCursor)
	fmt.Println()
	return nil
}

func cmdRelate(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("relate", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	fs.Parse(args)

	if fs.NArg() != 4 {
		return fmt.Errorf("usage: lattice relate <from> <to> <predicate> <reverse>")
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	rel, err := ns.Relate(context.Background(), fs.Arg(0), fs.Arg(1), fs.Arg(2), fs.Arg(3))
	if err != nil {
		return err
	}

	color.Green("Related %s -[%s/%s]-> %s\n", rel.From, rel.Predicate, rel.Reverse, rel.To)
	return nil
}

func cmdUnrelate(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("unrelate", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	fs.Parse(args)

	if fs.NArg() != 3 {
		return fmt.Errorf("usage: lattice unrelate <from> <to> <predicate>")
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	removed, err := ns.Unrelate(context.Background(), fs.Arg(0), fs.Arg(1), fs.Arg(2))
	if err != nil {
		return err
	}
	if !removed {
		fmt.Println("  (no such relationship)")
		return nil
	}

	color.Green("Unrelated\n")
	return nil
}

func cmdRelated(reg *namespace.Registry, args []string, reverse bool) error {
	name := "related"
	if reverse {
		name = "relatedby"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	nsName := namespaceFlag(fs)
	limit := fs.Int("limit", 50, "Page size")
	cursor := fs.String("cursor", "", "Continue from cursor")
	descending := fs.Bool("desc", false, "Newest relationships first")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: lattice %s <url> <name>", name)
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}

	opts := store.QueryOptions{Limit: *limit, Cursor: *cursor, Descending: *descending}
	var result *store.RelatedResult
	if reverse {
		result, err = ns.RelatedBy(context.Background(), fs.Arg(0), fs.Arg(1), opts)
	} else {
		result, err = ns.Related(context.Background(), fs.Arg(0), fs.Arg(1), opts)
	}
	if err != nil {
		return err
	}

	fmt.Println()
	printThingTable(result.Things, result.NextCursor)
	fmt.Println()
	return nil
}

func cmdSearch(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	query := fs.String("q", "", "Query text (required)")
	thingType := fs.String("type", "", "Filter by type")
	mode := fs.String("mode", "", "Search mode: lexical, semantic, hybrid")
	limit := fs.Int("limit", 10, "Max results")
	fs.Parse(args)

	if *query == "" {
		return fmt.Errorf("-q is required")
	}

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	results, err := ns.Search(context.Background(), search.Query{
		Text:  *query,
		Type:  *thingType,
		Limit: *limit,
		Mode:  search.Mode(*mode),
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("  (no matches)")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SCORE\tURL\tTYPE")
	fmt.Fprintln(w, "  -----\t---\t----")
	for _, r := range results {
		fmt.Fprintf(w, "  %.3f\t%s\t%s\n", r.Score, r.Thing.URL, r.Thing.Type)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdEvents(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	eventType := fs.String("type", "", "Filter by event type")
	limit := fs.Int("limit", 50, "Page size")
	cursor := fs.String("cursor", "", "Continue from cursor")
	fs.Parse(args)

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	result, err := ns.ListEvents(context.Background(), store.ListEventsParams{
		Type:   *eventType,
		Limit:  *limit,
		Cursor: *cursor,
	})
	if err != nil {
		return err
	}

	if len(result.Events) == 0 {
		fmt.Println("  (no events)")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIMESTAMP\tTYPE\tPAYLOAD")
	fmt.Fprintln(w, "  ---------\t----\t-------")
	for _, ev := range result.Events {
		payload, _ := json.Marshal(ev.Payload)
		display := string(payload)
		if len(display) > 60 {
			display = display[:57] + "..."
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", ev.Timestamp.Format("Jan 02 15:04:05"), ev.Type, display)
	}
	w.Flush()

	if result.NextCursor != "" {
		fmt.Printf("\n  next cursor: %s\n", result.NextCursor)
	}
	fmt.Println()
	return nil
}

func cmdActions(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("actions", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	status := fs.String("status", "", "Filter by status: pending, running, completed, failed")
	limit := fs.Int("limit", 50, "Max actions")
	fs.Parse(args)

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	actions, err := ns.ListActions(context.Background(), store.ActionStatus(*status), *limit)
	if err != nil {
		return err
	}

	if len(actions) == 0 {
		fmt.Println("  (no actions)")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tACTOR\tVERB\tTARGET\tSTATUS")
	fmt.Fprintln(w, "  --\t-----\t----\t------\t------")
	for _, a := range actions {
		id := a.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", id, a.Actor, a.Verb, a.Target, a.Status)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdArtifact(reg *namespace.Registry, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lattice artifact <get|set|del|key> ...")
	}
	sub := args[0]
	args = args[1:]

	// `key` is a pure helper; it needs no namespace.
	if sub == "key" {
		if len(args) == 0 {
			return fmt.Errorf("usage: lattice artifact key <part> [part...]")
		}
		fmt.Println(store.Fingerprint(args...))
		return nil
	}

	fs := flag.NewFlagSet("artifact "+sub, flag.ExitOnError)
	nsName := namespaceFlag(fs)
	artifactType := fs.String("type", "blob", "Artifact type (set only)")
	fs.Parse(args)

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch sub {
	case "get":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: lattice artifact get <key>")
		}
		artifact, err := ns.GetArtifact(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		os.Stdout.Write(artifact.Payload)
		return nil

	case "set":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: lattice artifact set <key> [-type t] < payload")
		}
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading payload from stdin: %w", err)
		}
		artifact, err := ns.SetArtifact(ctx, fs.Arg(0), *artifactType, payload)
		if err != nil {
			return err
		}
		color.Green("Stored %s (%d bytes)\n", artifact.Key, len(artifact.Payload))
		return nil

	case "del":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: lattice artifact del <key>")
		}
		removed, err := ns.InvalidateArtifact(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if !removed {
			fmt.Println("  (no such artifact)")
			return nil
		}
		color.Green("Invalidated %s\n", fs.Arg(0))
		return nil

	default:
		return fmt.Errorf("unknown artifact subcommand: %s", sub)
	}
}

func cmdSyncStatus(reg *namespace.Registry, args []string) error {
	fs := flag.NewFlagSet("sync-status", flag.ExitOnError)
	nsName := namespaceFlag(fs)
	limit := fs.Int("limit", 50, "Max pending mutations to show")
	flush := fs.Bool("flush", false, "Synchronously deliver the pending outbox now")
	fs.Parse(args)

	ns, err := openNamespace(reg, *nsName)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *flush {
		results, err := ns.Flush(ctx, *limit)
		if err != nil {
			return err
		}
		for _, r := range results {
			for _, outcome := range r.Outcomes {
				line := fmt.Sprintf("  %s -> %s: %s", r.MutationID, outcome.Target, outcome.Status)
				if outcome.Status == store.DeliveryDelivered {
					color.Green("%s\n", line)
				} else {
					color.Red("%s (%s)\n", line, outcome.Error)
				}
			}
		}
		if len(results) == 0 {
			fmt.Println("  (outbox empty)")
		}
		return nil
	}

	status, err := ns.SyncStatus(ctx, *limit)
	if err != nil {
		return err
	}

	if len(status.Pending) == 0 {
		fmt.Println("  (outbox empty)")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  MUTATION\tOP\tTARGET\tSTATUS\tATTEMPTS\tLAST ERROR")
	fmt.Fprintln(w, "  --------\t--\t------\t------\t--------\t----------")
	for _, m := range status.Pending {
		id := m.ID
		if len(id) > 12 {
			id = id[:12]
		}
		deliveries := status.Deliveries[m.ID]
		if len(deliveries) == 0 {
			fmt.Fprintf(w, "  %s\t%s\t-\tqueued\t0\t\n", id, m.Op)
			continue
		}
		for _, d := range deliveries {
			lastErr := d.LastError
			if len(lastErr) > 40 {
				lastErr = lastErr[:37] + "..."
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%s\n", id, m.Op, d.Target, d.Status, d.Attempts, lastErr)
		}
	}
	w.Flush()
	fmt.Println()
	return nil
}
