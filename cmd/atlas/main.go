// Command atlas is the boundary-atlas CLI: validate boundary collections,
// commit them to a Merkle tree, generate and verify inclusion proofs, and
// manage redistricting events.
//
// Exit codes: 0 fully passing, 1 accepted with warnings (needs review),
// 2 rejected or failed verification, 4 usage or internal error.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/communisaas/boundary-atlas/pkg/audit"
	"github.com/communisaas/boundary-atlas/pkg/config"
	"github.com/communisaas/boundary-atlas/pkg/geometry"
	"github.com/communisaas/boundary-atlas/pkg/governance"
	"github.com/communisaas/boundary-atlas/pkg/levels"
	"github.com/communisaas/boundary-atlas/pkg/merkle"
	"github.com/communisaas/boundary-atlas/pkg/observability"
	"github.com/communisaas/boundary-atlas/pkg/redistricting"
	"github.com/communisaas/boundary-atlas/pkg/store"
	"github.com/communisaas/boundary-atlas/pkg/validators"
	"github.com/communisaas/boundary-atlas/pkg/versioning"
)

const version = "1.0.0"

const (
	exitOK     = 0
	exitReview = 1
	exitReject = 2
	exitFault  = 4
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitFault
	}

	switch args[1] {
	case "validate":
		return runValidate(args[2:], stdout, stderr)
	case "commit":
		return runCommit(args[2:], stdout, stderr)
	case "prove":
		return runProve(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "events":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: atlas events <register|list|check>")
			return exitFault
		}
		return runEvents(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "atlas %s\n", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitFault
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "atlas %s - verifiable US boundary atlas\n", version)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  atlas <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  validate   Run the validation pipeline on a GeoJSON collection")
	fmt.Fprintln(w, "  commit     Validate, persist and commit a collection to a Merkle tree")
	fmt.Fprintln(w, "  prove      Generate an inclusion proof for a committed district")
	fmt.Fprintln(w, "  verify     Verify an inclusion proof")
	fmt.Fprintln(w, "  events     Manage redistricting events (register|list|check)")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show this help")
	fmt.Fprintln(w, "")
}

// loadCollection parses a GeoJSON file into a feature collection with the
// source metadata the Merkle layer needs.
func loadCollection(path, jurisdictionID, sourceURL string, authority int) (*geometry.FeatureCollection, geometry.SourceMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, geometry.SourceMetadata{}, fmt.Errorf("read %s: %w", path, err)
	}
	meta := geometry.SourceMetadata{
		SourceURL:      sourceURL,
		Authority:      geometry.AuthorityClass(authority),
		RetrievedAt:    time.Now().UTC(),
		JurisdictionID: jurisdictionID,
	}
	fc, err := geometry.ParseCollection(raw, meta)
	if err != nil {
		return nil, meta, err
	}
	return fc, meta, nil
}

func runValidate(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		input        string
		jurisdiction string
		level        string
		registryPath string
		jsonOutput   bool
	)
	cmd.StringVar(&input, "input", "", "Path to GeoJSON boundary collection (REQUIRED)")
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction id, e.g. portland-or (REQUIRED)")
	cmd.StringVar(&level, "level", string(levels.CouncilDistrict), "Boundary level code")
	cmd.StringVar(&registryPath, "registry", "", "Governance registry path (default from env)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return exitFault
	}
	if input == "" || jurisdiction == "" {
		fmt.Fprintln(stderr, "Error: --input and --jurisdiction are required")
		cmd.Usage()
		return exitFault
	}

	cfg := config.Load()
	explicitRegistry := registryPath != ""
	if registryPath == "" {
		registryPath = cfg.GovernanceRegistryPath
	}

	ctx := context.Background()
	stopTelemetry := setupObservability(ctx, cfg)
	defer stopTelemetry()

	fc, _, err := loadCollection(input, jurisdiction, "file://"+input, int(geometry.AuthorityCommunity))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitReject
	}

	logger := newLogger(cfg.LogLevel)
	pipeline := validators.DefaultPipeline(logger)
	result, err := pipeline.Validate(ctx, fc, jurisdiction, levels.Code(level))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}

	// Governance gate: a registry verdict overrides pipeline confidence.
	// The default registry path is optional, but a path the operator asked
	// for must load.
	reg, regErr := governance.LoadRegistry(registryPath)
	switch {
	case regErr != nil && explicitRegistry:
		fmt.Fprintf(stderr, "Error: load registry: %v\n", regErr)
		return exitFault
	case regErr == nil:
		check := reg.ValidateDiscoveredDistricts(jurisdiction, len(fc.Features))
		if !check.Valid {
			result.Valid = false
			result.Confidence = 0
			result.Issues = append(result.Issues, check.Reason)
		}
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		printResult(stdout, result)
	}

	switch {
	case !result.Valid || result.Confidence < validators.EscalateLow:
		return exitReject
	case result.NeedsReview():
		return exitReview
	default:
		return exitOK
	}
}

func printResult(w io.Writer, result validators.PipelineResult) {
	status := "ACCEPTED"
	if !result.Valid || result.Confidence < validators.EscalateLow {
		status = "REJECTED"
	} else if result.NeedsReview() {
		status = "NEEDS REVIEW"
	}
	fmt.Fprintf(w, "%s (confidence %d)\n", status, result.Confidence)
	for _, issue := range result.Issues {
		fmt.Fprintf(w, "  issue: %s\n", issue)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

func runCommit(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("commit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		input        string
		jurisdiction string
		level        string
		sourceURL    string
		authority    int
		dbPath       string
		force        bool
	)
	cmd.StringVar(&input, "input", "", "Path to GeoJSON boundary collection (REQUIRED)")
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction id (REQUIRED)")
	cmd.StringVar(&level, "level", string(levels.CouncilDistrict), "Boundary level code")
	cmd.StringVar(&sourceURL, "source", "", "Source URL for provenance")
	cmd.IntVar(&authority, "authority", int(geometry.AuthorityStateOfficial), "Authority class 1-4")
	cmd.StringVar(&dbPath, "db", "", "SQLite database path (default from env)")
	cmd.BoolVar(&force, "force", false, "Commit even when the pipeline escalates")

	if err := cmd.Parse(args); err != nil {
		return exitFault
	}
	if input == "" || jurisdiction == "" {
		fmt.Fprintln(stderr, "Error: --input and --jurisdiction are required")
		cmd.Usage()
		return exitFault
	}
	if sourceURL == "" {
		sourceURL = "file://" + input
	}

	cfg := config.Load()
	if dbPath == "" {
		dbPath = cfg.DBPath
	}

	fc, meta, err := loadCollection(input, jurisdiction, sourceURL, authority)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitReject
	}

	ctx := context.Background()
	stopTelemetry := setupObservability(ctx, cfg)
	defer stopTelemetry()

	logger := newLogger(cfg.LogLevel)
	pipeline := validators.DefaultPipeline(logger)
	result, err := pipeline.Validate(ctx, fc, jurisdiction, levels.Code(level))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	if !result.Valid || result.Confidence < validators.EscalateLow {
		printResult(stderr, result)
		return exitReject
	}
	if result.NeedsReview() && !force {
		printResult(stderr, result)
		fmt.Fprintln(stderr, "Refusing to commit an escalated collection without --force")
		return exitReview
	}

	records := make([]merkle.BoundaryRecord, 0, len(fc.Features))
	for i := range fc.Features {
		rec, recErr := merkle.RecordFromFeature(&fc.Features[i], meta, level)
		if recErr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", recErr)
			return exitReject
		}
		records = append(records, rec)
	}

	tree, err := merkle.Build(records)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open database: %v\n", err)
		return exitFault
	}
	defer func() { _ = db.Close() }()

	atlasStore, err := store.NewAtlasStore(db, audit.NewLoggerWithWriter(stderr))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}

	// Districts and Leaves share the canonical ordering after Build.
	for i, rec := range tree.Districts {
		if saveErr := atlasStore.SaveRecord(ctx, rec, tree.Leaves[i].Hash, "commit "+input); saveErr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", saveErr)
			return exitFault
		}
	}

	// Version the snapshot: same root republished is a no-op.
	ledger := versioning.NewLedger()
	if latest, snapErr := atlasStore.LatestSnapshot(ctx); snapErr == nil && latest != nil {
		_ = ledger.Restore([]versioning.Entry{{
			Version:   latest.Version,
			Root:      latest.Root,
			LeafCount: latest.LeafCount,
			Published: latest.CreatedAt,
		}})
	}
	entry, created, err := ledger.Publish(tree.Root, tree.LeafCount())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	if created {
		if _, err := atlasStore.SaveSnapshot(ctx, entry.Version, entry.Root, entry.LeafCount); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFault
		}
	}

	fmt.Fprintf(stdout, "committed %d districts\n", tree.LeafCount())
	fmt.Fprintf(stdout, "root:    %s\n", tree.Root)
	fmt.Fprintf(stdout, "version: %s\n", entry.Version)
	return exitOK
}

func runProve(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("prove", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		input        string
		jurisdiction string
		level        string
		district     string
	)
	cmd.StringVar(&input, "input", "", "Path to GeoJSON boundary collection (REQUIRED)")
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction id (REQUIRED)")
	cmd.StringVar(&level, "level", string(levels.CouncilDistrict), "Boundary level code")
	cmd.StringVar(&district, "district", "", "District id to prove (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return exitFault
	}
	if input == "" || jurisdiction == "" || district == "" {
		fmt.Fprintln(stderr, "Error: --input, --jurisdiction and --district are required")
		cmd.Usage()
		return exitFault
	}

	fc, meta, err := loadCollection(input, jurisdiction, "file://"+input, int(geometry.AuthorityStateOfficial))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitReject
	}

	records := make([]merkle.BoundaryRecord, 0, len(fc.Features))
	for i := range fc.Features {
		rec, recErr := merkle.RecordFromFeature(&fc.Features[i], meta, level)
		if recErr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", recErr)
			return exitReject
		}
		records = append(records, rec)
	}

	tree, err := merkle.Build(records)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	proof, err := tree.GenerateProof(district)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitReject
	}

	data, _ := json.MarshalIndent(proof, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return exitOK
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		proofPath   string
		trustedRoot string
	)
	cmd.StringVar(&proofPath, "proof", "", "Path to proof JSON (REQUIRED)")
	cmd.StringVar(&trustedRoot, "root", "", "Trusted root to verify against (defaults to the proof's claimed root)")

	if err := cmd.Parse(args); err != nil {
		return exitFault
	}
	if proofPath == "" {
		fmt.Fprintln(stderr, "Error: --proof is required")
		cmd.Usage()
		return exitFault
	}

	raw, err := os.ReadFile(proofPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	var proof merkle.Proof
	if err := json.Unmarshal(raw, &proof); err != nil {
		fmt.Fprintf(stderr, "Error: decode proof: %v\n", err)
		return exitReject
	}

	ok := false
	if trustedRoot != "" {
		ok = merkle.VerifyProofAgainstRoot(proof, trustedRoot)
	} else {
		ok = merkle.VerifyProof(proof)
	}
	if !ok {
		fmt.Fprintf(stderr, "INVALID proof for %s\n", proof.DistrictID)
		return exitReject
	}
	fmt.Fprintf(stdout, "VALID proof for %s against root %s\n", proof.DistrictID, proof.MerkleRoot)
	return exitOK
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "register":
		return runEventsRegister(args[1:], stdout, stderr)
	case "list":
		return runEventsList(args[1:], stdout, stderr)
	case "check":
		return runEventsCheck(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown events subcommand: %s\n", args[0])
		return exitFault
	}
}

func openStore(dbPath string, stderr io.Writer) (*store.AtlasStore, *sql.DB, error) {
	if dbPath == "" {
		dbPath = config.Load().DBPath
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	s, err := store.NewAtlasStore(db, audit.NewLoggerWithWriter(stderr))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

func runEventsRegister(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("events register", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		jurisdiction string
		districtType string
		effective    string
		source       string
		oldRoot      string
		newRoot      string
		dbPath       string
	)
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction id (REQUIRED)")
	cmd.StringVar(&districtType, "type", string(levels.CouncilDistrict), "District type")
	cmd.StringVar(&effective, "effective", "", "Effective date YYYY-MM-DD (REQUIRED)")
	cmd.StringVar(&source, "source", string(redistricting.SourceLegislative), "Event source: court_order|legislative|census")
	cmd.StringVar(&oldRoot, "old-root", "", "Previous Merkle root (REQUIRED)")
	cmd.StringVar(&newRoot, "new-root", "", "New Merkle root (REQUIRED)")
	cmd.StringVar(&dbPath, "db", "", "SQLite database path (default from env)")

	if err := cmd.Parse(args); err != nil {
		return exitFault
	}
	if jurisdiction == "" || effective == "" || oldRoot == "" || newRoot == "" {
		fmt.Fprintln(stderr, "Error: --jurisdiction, --effective, --old-root and --new-root are required")
		cmd.Usage()
		return exitFault
	}
	effectiveDate, err := time.Parse("2006-01-02", effective)
	if err != nil {
		fmt.Fprintf(stderr, "Error: bad effective date: %v\n", err)
		return exitFault
	}

	cfg := config.Load()
	tracker := redistricting.NewTrackerWithWindow(cfg.DualValidityWindow())
	event, err := tracker.RegisterEvent(redistricting.Event{
		JurisdictionID: jurisdiction,
		DistrictType:   districtType,
		EffectiveDate:  effectiveDate,
		Source:         redistricting.Source(source),
		OldMerkleRoot:  oldRoot,
		NewMerkleRoot:  newRoot,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitReject
	}

	s, db, err := openStore(dbPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	defer func() { _ = db.Close() }()

	if err := s.SaveEvent(context.Background(), event); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	fmt.Fprintf(stdout, "registered event %s, dual validity until %s\n",
		event.ID, event.DualValidityUntil.UTC().Format("2006-01-02"))
	return exitOK
}

func runEventsList(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("events list", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		jurisdiction string
		dbPath       string
	)
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction id (REQUIRED)")
	cmd.StringVar(&dbPath, "db", "", "SQLite database path (default from env)")

	if err := cmd.Parse(args); err != nil {
		return exitFault
	}
	if jurisdiction == "" {
		fmt.Fprintln(stderr, "Error: --jurisdiction is required")
		cmd.Usage()
		return exitFault
	}

	s, db, err := openStore(dbPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	defer func() { _ = db.Close() }()

	events, err := s.ListEvents(context.Background(), jurisdiction)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	data, _ := json.MarshalIndent(events, "", "  ")
	fmt.Fprintln(stdout, string(data))
	return exitOK
}

func runEventsCheck(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("events check", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		jurisdiction string
		candidate    string
		current      string
		dbPath       string
	)
	cmd.StringVar(&jurisdiction, "jurisdiction", "", "Jurisdiction id (REQUIRED)")
	cmd.StringVar(&candidate, "root", "", "Candidate root to check (REQUIRED)")
	cmd.StringVar(&current, "current-root", "", "Current published root (REQUIRED)")
	cmd.StringVar(&dbPath, "db", "", "SQLite database path (default from env)")

	if err := cmd.Parse(args); err != nil {
		return exitFault
	}
	if jurisdiction == "" || candidate == "" || current == "" {
		fmt.Fprintln(stderr, "Error: --jurisdiction, --root and --current-root are required")
		cmd.Usage()
		return exitFault
	}

	s, db, err := openStore(dbPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	defer func() { _ = db.Close() }()

	events, err := s.ListEvents(context.Background(), jurisdiction)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}

	// Rehydrate persisted events verbatim: the stored windows are
	// authoritative, so reconfiguring the window never shifts a past
	// registration.
	tracker := redistricting.NewTracker()
	if err := tracker.Restore(events); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFault
	}
	check := tracker.IsRootValid(jurisdiction, candidate, current)

	data, _ := json.MarshalIndent(check, "", "  ")
	fmt.Fprintln(stdout, string(data))
	if !check.Valid {
		return exitReject
	}
	return exitOK
}

// setupObservability installs the OTel trace and metric providers when an
// OTLP endpoint is configured; without one the pipeline's instrument calls
// fall through to the otel globals' no-ops. The returned func flushes and
// shuts the providers down.
func setupObservability(ctx context.Context, cfg *config.Config) func() {
	if cfg.OTLPEndpoint == "" {
		return func() {}
	}
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
