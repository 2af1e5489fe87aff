package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tabtriage/tabtriage/internal/applog"
	"github.com/tabtriage/tabtriage/internal/client"
	"github.com/tabtriage/tabtriage/internal/config"
	"github.com/tabtriage/tabtriage/internal/engine"
	"github.com/tabtriage/tabtriage/internal/export"
	"github.com/tabtriage/tabtriage/internal/firefox"
	"github.com/tabtriage/tabtriage/internal/provider"
	"github.com/tabtriage/tabtriage/internal/rules"
	"github.com/tabtriage/tabtriage/internal/server"
	"github.com/tabtriage/tabtriage/internal/storage"
	"github.com/tabtriage/tabtriage/internal/titles"
	"github.com/tabtriage/tabtriage/internal/types"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		return
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "state":
		runState(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "classify":
		runClassify(os.Args[2:])
	case "correct":
		runCorrect(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	case "urls":
		runURLs(os.Args[2:])
	case "clear":
		runClear(os.Args[2:])
	case "profiles":
		runProfiles()
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q. Run 'tabtriage help' for usage.\n", os.Args[1])
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`tabtriage — live Firefox tab triage

Usage:
  tabtriage serve                                     Run the classification daemon
    --port <n>             WebSocket port (default: 19191)
    --db <path>            Database path (default: ~/.local/share/tabtriage/tabtriage.db)
    --rules <path>         Rules file (default: ~/.config/tabtriage/rules.yaml)
    --provider <name>      Remote provider: ollama, openai, or none (default: ollama)
    --model <name>         Provider model name
    --learned              Enable the learned classification stage (default: true)
    --min-confidence <f>   Learned stage confidence floor (default: 0.6)
    --resolve-titles       Fetch titles for placeholder tabs

  tabtriage state                                     Show the current tier assignments
    --json                 Print JSON instead of the colored tier view
    --md                   Print Markdown instead of the colored tier view
    --out <file>           Output file path (default: stdout)
    --port <n>             Daemon port (default: 19191)

  tabtriage watch                                     Stream state changes as they happen
    --port <n>             Daemon port (default: 19191)

  tabtriage classify                                  One-shot classify of a session file
    --profile <name>       Firefox profile name
    --db <path>            Database path
    --rules <path>         Rules file
    --provider <name>      Remote provider: ollama, openai, or none
    --model <name>         Provider model name
    --json                 Print JSON instead of the colored tier view

  tabtriage correct <address> <category>              Reassign a unit's tier
    --from <category>      Tier the unit is expected to be in
    --port <n>             Daemon port (default: 19191)

  tabtriage import                                    Push session-file tabs into the daemon
    --profile <name>       Firefox profile name
    --port <n>             Daemon port (default: 19191)

  tabtriage urls                                      List persisted URL records
    --saved                Only records marked saved
    --json                 Print JSON instead of the table
    --md                   Print Markdown instead of the table
  tabtriage urls save <address>                       Mark a record saved
  tabtriage urls unsave <address>                     Clear the saved mark
  tabtriage urls delete <address> [--yes]             Delete a record and its history

  tabtriage clear [--yes]                             Reset the daemon's live state
    --port <n>             Daemon port (default: 19191)

  tabtriage profiles                                  List Firefox profiles

Environment:
  TABTRIAGE_PORT            Daemon port (default: 19191)
  TABTRIAGE_DB              Database path
  TABTRIAGE_RULES           Rules file path
  TABTRIAGE_PROFILE         Default Firefox profile (overridden by --profile)
  TABTRIAGE_PROVIDER        Remote provider: ollama, openai, or none
  TABTRIAGE_MODEL           Provider model name (overridden by --model)
  OLLAMA_HOST               Ollama server URL (default: http://localhost:11434)
  OPENAI_API_KEY            API key for the openai provider
  OPENAI_BASE_URL           OpenAI-compatible base URL override
  TABTRIAGE_LEARNED         Enable the learned stage (default: true)
  TABTRIAGE_MIN_CONFIDENCE  Learned stage confidence floor (default: 0.6)
  TABTRIAGE_RESOLVE_TITLES  Fetch titles for placeholder tabs (default: false)
`)
}

func runServe(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "WebSocket port")
	dbPath := fs.String("db", cfg.DBPath, "Database path")
	rulesPath := fs.String("rules", cfg.Rules, "Rules file path")
	providerName := fs.String("provider", cfg.Provider, "Remote provider: ollama, openai, or none")
	modelName := fs.String("model", cfg.Model, "Provider model name")
	useLearned := fs.Bool("learned", cfg.UseLearned, "Enable the learned classification stage")
	minConfidence := fs.Float64("min-confidence", cfg.MinConfidence, "Learned stage confidence floor")
	resolveTitles := fs.Bool("resolve-titles", cfg.ResolveTitles, "Fetch titles for placeholder tabs")
	fs.Parse(args)

	if err := applog.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer applog.Close()

	db, err := openDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ruleSet, err := rules.Load(*rulesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading rules: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	updates, err := rules.Watch(ctx, *rulesPath)
	if err != nil {
		// The daemon still runs with the rules loaded at startup.
		applog.Error("rules.watch.init", err, "path", *rulesPath)
		fmt.Fprintf(os.Stderr, "Rules hot reload disabled: %v\n", err)
		updates = nil
	}

	var resolver *titles.Resolver
	if *resolveTitles {
		resolver = titles.NewResolver(cfg.TitleWorkers)
		defer resolver.Close()
	}

	eng := engine.New(engine.Options{
		DB:            db,
		Provider:      buildProvider(cfg, *providerName, *modelName),
		Rules:         ruleSet,
		RulesUpdates:  updates,
		Resolver:      resolver,
		UseLearned:    *useLearned,
		MinConfidence: *minConfidence,
	})
	srv := server.New(*port, eng)
	eng.SetPush(srv.Push)
	go eng.Run(ctx)

	applog.Info("serve.start", "port", *port, "rules", len(ruleSet), "provider", *providerName)
	fmt.Fprintf(os.Stderr, "tabtriage daemon listening on 127.0.0.1:%d\n", *port)

	if err := srv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runState(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "Daemon port")
	jsonFlag := fs.Bool("json", false, "Print JSON instead of the colored tier view")
	mdFlag := fs.Bool("md", false, "Print Markdown instead of the colored tier view")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := dialDaemon(ctx, *port)
	defer c.Close()

	st, err := c.GetState(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	snap, err := snapshotFromPayload(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var output string
	switch {
	case *jsonFlag:
		output, err = export.JSON(snap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating JSON: %v\n", err)
			os.Exit(1)
		}
	case *mdFlag:
		output = export.Markdown(snap)
	default:
		output = renderSnapshot(snap)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(output), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Print(output)
	}
}

func runWatch(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "Daemon port")
	fs.Parse(args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := dialDaemon(ctx, *port)
	defer c.Close()

	fmt.Fprintf(os.Stderr, "Watching state changes on port %d (Ctrl-C to stop)...\n", *port)

	err := c.Watch(ctx, func(ev server.EventPayload) {
		ts := ev.Timestamp
		if t, perr := time.Parse(time.RFC3339, ev.Timestamp); perr == nil {
			ts = t.Local().Format("15:04:05")
		}
		line := fmt.Sprintf("%s  %-17s", ts, ev.Kind)
		if ev.Unit != nil {
			if ev.Unit.Category != "" {
				line += fmt.Sprintf(" [%s]", ev.Unit.Category)
			}
			line += " " + ev.Unit.Address
		}
		fmt.Println(line)
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runClassify(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	profileName := fs.String("profile", cfg.Profile, "Firefox profile name")
	dbPath := fs.String("db", cfg.DBPath, "Database path")
	rulesPath := fs.String("rules", cfg.Rules, "Rules file path")
	providerName := fs.String("provider", cfg.Provider, "Remote provider: ollama, openai, or none")
	modelName := fs.String("model", cfg.Model, "Provider model name")
	jsonFlag := fs.Bool("json", false, "Print JSON instead of the colored tier view")
	fs.Parse(args)

	tabs, profile, err := resolveSession(*profileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	db, err := openDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ruleSet, err := rules.Load(*rulesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading rules: %v\n", err)
		os.Exit(1)
	}

	saved, err := storage.SavedAddresses(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	exclude := make([]string, 0, len(saved))
	for a := range saved {
		exclude = append(exclude, a)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng := engine.New(engine.Options{
		DB:            db,
		Provider:      buildProvider(cfg, *providerName, *modelName),
		Rules:         ruleSet,
		UseLearned:    cfg.UseLearned,
		MinConfidence: cfg.MinConfidence,
	})
	go eng.Run(ctx)

	fmt.Fprintf(os.Stderr, "Classifying %d tabs from profile %s...\n", len(tabs), profile.Name)

	reply, err := eng.Classify(ctx, tabs, exclude)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if reply.Degraded != "" {
		fmt.Fprintf(os.Stderr, "Warning: remote stage unavailable (%s), heuristic verdicts used.\n", reply.Degraded)
	}

	snap := &types.StateSnapshot{Categorized: reply.Tiers}
	if *jsonFlag {
		output, err := export.JSON(snap)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(output)
	} else {
		fmt.Print(renderSnapshot(snap))
	}
}

func runCorrect(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("correct", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "Daemon port")
	from := fs.String("from", "", "Tier the unit is expected to be in")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: tabtriage correct <address> <category> [--from tier] [--port N]")
		os.Exit(1)
	}
	address := fs.Arg(0)
	category := fs.Arg(1)

	if _, err := types.ParseCategory(category); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v. Use can-close, save-later, or important.\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := dialDaemon(ctx, *port)
	defer c.Close()

	if err := c.Correct(ctx, address, *from, category); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Corrected %s to %s.\n", address, category)
}

func runImport(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	profileName := fs.String("profile", cfg.Profile, "Firefox profile name")
	port := fs.Int("port", cfg.Port, "Daemon port")
	fs.Parse(args)

	tabs, profile, err := resolveSession(*profileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(tabs) == 0 {
		fmt.Fprintln(os.Stderr, "No tabs in the session file.")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.PushSnapshot(ctx, *port, tabs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d tabs from profile %s.\n", len(tabs), profile.Name)
}

func runURLs(args []string) {
	// No args or a leading flag means the list flow.
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		runURLsList(args)
		return
	}

	subcmd := args[0]
	subArgs := args[1:]

	switch subcmd {
	case "list":
		runURLsList(subArgs)
	case "save":
		runURLsSetSaved(subArgs, true)
	case "unsave":
		runURLsSetSaved(subArgs, false)
	case "delete":
		runURLsDelete(subArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown urls command %q. Use list, save, unsave, or delete.\n", subcmd)
		os.Exit(1)
	}
}

func runURLsList(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("urls", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "Database path")
	savedOnly := fs.Bool("saved", false, "Only records marked saved")
	jsonFlag := fs.Bool("json", false, "Print JSON instead of the table")
	mdFlag := fs.Bool("md", false, "Print Markdown instead of the table")
	fs.Parse(args)

	db, err := openDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	recs, err := storage.ListRecords(db, *savedOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing records: %v\n", err)
		os.Exit(1)
	}

	if *jsonFlag {
		output, err := export.URLsJSON(recs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(output)
		return
	}
	if *mdFlag {
		fmt.Print(export.URLsMarkdown(recs))
		return
	}

	if len(recs) == 0 {
		fmt.Println("No URL records found.")
		return
	}

	fmt.Printf("%-13s %-5s %-32s  %s\n", "CATEGORY", "SAVED", "TITLE", "ADDRESS")
	for _, r := range recs {
		saved := ""
		if r.Saved {
			saved = "yes"
		}
		fmt.Printf("%-13s %-5s %-32s  %s\n", r.Category.String(), saved, truncateTitle(r.Title, 32), r.Address)
	}
}

// truncateTitle shortens a title to at most n runes, with an ellipsis
// when cut.
func truncateTitle(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func runURLsSetSaved(args []string, save bool) {
	verb := "save"
	if !save {
		verb = "unsave"
	}

	cfg := config.Load()
	fs := flag.NewFlagSet("urls "+verb, flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "Database path")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: tabtriage urls %s <address>\n", verb)
		os.Exit(1)
	}
	address := fs.Arg(0)

	db, err := openDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.SetSaved(db, address, save); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if save {
		fmt.Printf("Saved %s.\n", address)
	} else {
		fmt.Printf("Unsaved %s.\n", address)
	}
}

func runURLsDelete(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("urls delete", flag.ExitOnError)
	dbPath := fs.String("db", cfg.DBPath, "Database path")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabtriage urls delete <address> [--yes]")
		os.Exit(1)
	}
	address := fs.Arg(0)

	if !*yes {
		fmt.Printf("Delete the record for %s? [y/N] ", address)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	db, err := openDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.DeleteRecord(db, address); err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting record: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Record for %s deleted.\n", address)
}

func runClear(args []string) {
	cfg := config.Load()
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "Daemon port")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	fs.Parse(args)

	if !*yes {
		fmt.Print("Reset the daemon's live state? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := dialDaemon(ctx, *port)
	defer c.Close()

	if err := c.Clear(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Live state cleared.")
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering Firefox profiles: %v\n", err)
		os.Exit(1)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "No Firefox profiles found.")
		os.Exit(1)
	}

	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}

// buildProvider constructs the remote pipeline stage. "none" disables
// it; classification then falls through to the heuristic stage.
func buildProvider(cfg *config.Config, name, model string) provider.Provider {
	switch name {
	case "ollama":
		return provider.NewOllama(cfg.Host, model)
	case "openai":
		return provider.NewOpenAI(cfg.APIKey, cfg.BaseURL, model)
	case "none", "":
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown provider %q. Use ollama, openai, or none.\n", name)
		os.Exit(1)
		return nil
	}
}

// dialDaemon connects to the sync endpoint or exits with a hint.
func dialDaemon(ctx context.Context, port int) *client.Client {
	c, err := client.Dial(ctx, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Is the daemon running? Start it with 'tabtriage serve'.")
		os.Exit(1)
	}
	return c
}

// resolveSession discovers profiles and reads the session file for the
// given profile name. An empty name means the default profile, falling
// back to the first one found.
func resolveSession(profileName string) ([]types.Tab, firefox.Profile, error) {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return nil, firefox.Profile{}, fmt.Errorf("discover profiles: %w", err)
	}
	profile, err := firefox.PickProfile(profiles, profileName)
	if err != nil {
		return nil, firefox.Profile{}, err
	}
	tabs, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		return nil, firefox.Profile{}, fmt.Errorf("read session: %w", err)
	}
	return tabs, profile, nil
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		p, err := storage.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.OpenDB(path)
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

// snapshotFromPayload rebuilds a state snapshot from its wire form.
func snapshotFromPayload(st *server.StatePayload) (*types.StateSnapshot, error) {
	snap := &types.StateSnapshot{
		Categorized:    make(map[types.Category][]types.Unit),
		DuplicateIndex: make(map[string][]int),
	}
	for name, units := range st.Tiers {
		cat, err := types.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("state reply: %w", err)
		}
		for _, up := range units {
			snap.Categorized[cat] = append(snap.Categorized[cat], types.Unit{
				Address:        up.Address,
				Title:          up.Title,
				Domain:         up.Domain,
				Category:       cat,
				Provenance:     types.Provenance(up.Provenance),
				DuplicateIDs:   up.InstanceIDs,
				DuplicateCount: up.DuplicateCount,
				AlreadySaved:   up.AlreadySaved,
			})
		}
	}
	for address, ids := range st.Duplicates {
		snap.DuplicateIndex[address] = ids
	}
	return snap, nil
}

// renderSnapshot renders the colored terminal view, most important
// tier first.
func renderSnapshot(snap *types.StateSnapshot) string {
	headingStyle := lipgloss.NewStyle().Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // grey
	tierStyles := map[types.Category]lipgloss.Style{
		types.Important:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),  // green
		types.SaveLater:     lipgloss.NewStyle().Foreground(lipgloss.Color("33")),  // blue
		types.CanClose:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")), // grey
		types.Uncategorized: lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // orange
	}

	var b strings.Builder
	total := 0
	for _, cat := range []types.Category{types.Important, types.SaveLater, types.CanClose, types.Uncategorized} {
		units := snap.Categorized[cat]
		if len(units) == 0 {
			continue
		}
		total += len(units)

		heading := fmt.Sprintf("%s (%d)", strings.ToUpper(cat.String()), len(units))
		b.WriteString(headingStyle.Render(heading))
		b.WriteByte('\n')

		marker := tierStyles[cat].Render("●")
		for _, u := range units {
			title := u.Title
			if title == "" {
				title = u.Address
			}
			line := "  " + marker + " " + title
			if u.DuplicateCount > 1 {
				line += fmt.Sprintf(" ×%d", u.DuplicateCount)
			}
			if u.AlreadySaved {
				line += " [saved]"
			}
			if u.Provenance != "" {
				line += " " + dimStyle.Render("("+string(u.Provenance)+")")
			}
			b.WriteString(line)
			b.WriteByte('\n')
			if title != u.Address {
				b.WriteString(dimStyle.Render("      " + u.Address))
				b.WriteByte('\n')
			}
		}
		b.WriteByte('\n')
	}

	if total == 0 {
		return "No units tracked. Connect the extension or run 'tabtriage import'.\n"
	}
	return b.String()
}
