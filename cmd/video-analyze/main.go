package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mjrousos/video-analysis-exploration/internal/analyzer"
	"github.com/mjrousos/video-analysis-exploration/internal/auth"
	"github.com/mjrousos/video-analysis-exploration/internal/awsboot"
	"github.com/mjrousos/video-analysis-exploration/internal/cli"
	"github.com/mjrousos/video-analysis-exploration/internal/config"
	"github.com/mjrousos/video-analysis-exploration/internal/filehandler"
	"github.com/mjrousos/video-analysis-exploration/internal/indexer"
	"github.com/mjrousos/video-analysis-exploration/internal/logging"
	"github.com/mjrousos/video-analysis-exploration/internal/source"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// CLI flags
var (
	nameFlag        string
	descriptionFlag string
	configFlag      string
	videoURLFlag    string
	emitMetricsFlag bool
	pickFlag        bool
)

// settings holds flag-bound configuration; flags override file and env values.
var settings = config.New()

// exitCode is set by runMain and returned from main.
var exitCode = cli.ExitOK

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "video-analyze [flags] <video-file>",
	Short: "Analyze a video with Azure Video Indexer",
	Long: `video-analyze submits a video to Azure Video Indexer, waits for processing
to finish and saves the resulting index as JSON.

The video must be reachable by Video Indexer. Either pass a public URL with
--video-url, or configure a staging backend (azblob, s3, gcs) and the local
file is uploaded there first.

Account settings are read from video-analyze.yaml, VIDEO_ANALYZE_* environment
variables or SSM Parameter Store (ssmPrefix).

Examples:
  video-analyze ./talk.mp4 --video-url https://example.com/talk.mp4
  video-analyze ./talk.mp4 --source s3 -o talk-index.json.gz
  video-analyze --pick --source azblob --emit-metrics`,
	Args: cobra.MaximumNArgs(1),
	Run:  runMain,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&nameFlag, "name", "", "Video name in Video Indexer (default: file name)")
	flags.StringVar(&descriptionFlag, "description", "", "Video description")
	flags.StringP("output", "o", "", "Index output path; .gz or .zst compresses (default VideoIndex.json)")
	flags.Duration("poll-interval", 0, "Wait between processing state checks (default 10s)")
	flags.StringVar(&configFlag, "config", "", "Config file (default ./video-analyze.yaml)")
	flags.StringVar(&videoURLFlag, "video-url", "", "Public URL Video Indexer downloads the video from")
	flags.String("source", "", "Staging backend: url, azblob, s3, gcs")
	flags.BoolVar(&emitMetricsFlag, "emit-metrics", false, "Write CloudWatch EMF metrics to stdout")
	flags.BoolVar(&pickFlag, "pick", false, "Choose the video with a file dialog")

	bindFlag(settings, config.KeyOutputPath, "output")
	bindFlag(settings, config.KeyPollInterval, "poll-interval")
	bindFlag(settings, config.KeySourceBackend, "source")
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.Flags().Lookup(flag)); err != nil {
		log.Fatal().Err(err).Str("flag", flag).Msg("Failed to bind flag")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitFailure)
	}
	os.Exit(exitCode)
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode = run(ctx, args)
}

// run performs one analysis and returns the process exit code.
func run(ctx context.Context, args []string) int {
	inputPath, err := selectInput(args)
	if err != nil {
		if errors.Is(err, cli.ErrPickCancelled) {
			log.Warn().Msg("No file selected")
			return cli.ExitCancelled
		}
		if errors.Is(err, cli.ErrInputRequired) {
			log.Error().Msg("Input path is required")
		} else {
			log.Error().Err(err).Msg("Failed to select input file")
		}
		return cli.ExitFailure
	}

	inputPath, err = cli.ValidateAndResolveFile(inputPath)
	if err != nil {
		log.Error().Err(err).Msg("Invalid input path")
		return cli.ExitFailure
	}
	log.Info().Str("path", inputPath).Msg("Analyzing " + inputPath)

	video, err := filehandler.LoadVideoFile(inputPath)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load video file")
		return cli.ExitFailure
	}
	probeVideo(ctx, video)

	if videoURLFlag != "" {
		settings.Set(config.KeySourceBackend, source.BackendURL)
		settings.Set(config.KeySourceURL, videoURLFlag)
	}

	// Ledger, events and SSM use the SDK's default region; source.region
	// only applies to the s3 staging backend.
	awsClients := awsboot.New("")
	cfg, err := config.Load(ctx, settings, configFlag, awsClients.SSM)
	if err != nil {
		return cli.HandleAnalysisError(err)
	}

	cred, err := auth.NewDefaultCredential()
	if err != nil {
		return cli.HandleAnalysisError(err)
	}

	a, resolver, err := buildAnalyzer(ctx, cfg, cred, awsClients)
	if err != nil {
		return cli.HandleAnalysisError(err)
	}
	defer func() {
		if err := source.Close(resolver); err != nil {
			log.Warn().Err(err).Msg("Failed to close video source")
		}
	}()

	result, err := a.Analyze(ctx, newRequest(inputPath))
	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Err(err).Msg("Analysis cancelled")
			return cli.ExitCancelled
		}
		return cli.HandleAnalysisError(err)
	}

	switch result.Outcome {
	case analyzer.OutcomeCancelled:
		log.Warn().Str("videoId", result.VideoID).Msg("Analysis cancelled")
		return cli.ExitCancelled
	case analyzer.OutcomeFailed:
		log.Error().
			Str("videoId", result.VideoID).
			Stringer("state", result.State).
			Msg("Analysis failed")
		return cli.ExitFailure
	}

	log.Info().
		Str("videoId", result.VideoID).
		Str("output", result.OutputPath).
		Str("size", cli.FormatBytes(result.Bytes)).
		Int("polls", result.Polls).
		Str("elapsed", cli.FormatDurationShort(result.Elapsed)).
		Msg("Analysis complete")
	return cli.ExitOK
}

// newRequest builds the analysis request from the flags. An empty --name is
// passed through so the analyzer applies its default.
func newRequest(inputPath string) analyzer.Request {
	return analyzer.Request{
		InputPath:   inputPath,
		Name:        nameFlag,
		Description: descriptionFlag,
	}
}

// selectInput returns the positional argument or, with --pick, the dialog choice.
func selectInput(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if pickFlag {
		return cli.PickVideoFile()
	}
	return "", cli.ErrInputRequired
}

// probeVideo attaches ffprobe metadata when ffprobe is installed.
func probeVideo(ctx context.Context, video *filehandler.VideoFile) {
	if !filehandler.IsFFprobeAvailable() {
		log.Debug().Msg("ffprobe not found, skipping video metadata")
		return
	}
	probe, err := filehandler.ProbeVideo(ctx, video.Path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to probe video metadata")
		return
	}
	video.Probe = probe
	log.Info().
		Str("duration", cli.FormatDurationShort(probe.Duration)).
		Str("resolution", probe.Resolution()).
		Str("codec", probe.Codec).
		Str("size", cli.FormatBytes(video.Size)).
		Msg("Video metadata")
}

// buildAnalyzer wires the token provider, indexer client, source resolver and
// optional AWS collaborators for cfg. The caller closes the returned resolver.
func buildAnalyzer(ctx context.Context, cfg *config.Config, cred azcore.TokenCredential, awsClients *awsboot.Clients) (*analyzer.Analyzer, source.Resolver, error) {
	vi := cfg.AzureVideoIndexer

	tokens := auth.NewTokenProvider(cred, auth.Account{
		SubscriptionID: vi.SubscriptionID,
		ResourceGroup:  vi.ResourceGroup,
		AccountName:    vi.AccountName,
	}, vi.ARMBaseURL)

	client := indexer.NewClient(indexer.Options{
		BaseURL:                        vi.APIBaseURL,
		Location:                       vi.Location,
		AccountID:                      vi.AccountID,
		Language:                       vi.Language,
		RetentionPeriod:                vi.RetentionPeriod,
		PollInterval:                   cfg.Analysis.PollInterval,
		DisableManagedIdentityDownload: !source.UsesManagedIdentity(cfg.Source.Backend, vi.ManagedIdentityDownload),
	}, tokens)

	resolver, err := source.New(ctx, source.Options{
		Backend:           cfg.Source.Backend,
		URL:               cfg.Source.URL,
		Bucket:            cfg.Source.Bucket,
		Prefix:            cfg.Source.Prefix,
		Container:         cfg.Source.Container,
		StorageAccountURL: cfg.Source.StorageAccountURL,
		PresignExpiry:     cfg.Source.PresignExpiry,
		Region:            cfg.Source.Region,
		CredentialsFile:   cfg.Source.CredentialsFile,
	}, cred)
	if err != nil {
		return nil, nil, err
	}

	var metricsOut io.Writer
	if emitMetricsFlag {
		metricsOut = os.Stdout
	}

	a := analyzer.New(client, resolver, analyzer.Options{
		OutputPath:    cfg.Analysis.OutputPath,
		SourceBackend: cfg.Source.Backend,
		Location:      vi.Location,
		AccountID:     vi.AccountID,
		Metrics:       metricsOut,
	})

	jobs, err := awsClients.JobStore(ctx, cfg.Ledger.Table)
	if err != nil {
		log.Warn().Err(err).Msg("Job ledger unavailable, continuing without it")
	} else if jobs != nil {
		a.WithJobStore(jobs)
	}

	notifier, err := awsClients.Notifier(ctx, cfg.Events.BusName)
	if err != nil {
		log.Warn().Err(err).Msg("Event bus unavailable, continuing without completion events")
	} else if notifier != nil {
		a.WithNotifier(notifier)
	}

	logging.NewStartupLogger("video-analyze").
		Version(version).
		Account("location", vi.Location).
		Account("accountName", vi.AccountName).
		Account("resourceGroup", vi.ResourceGroup).
		Resource("ledgerTable", cfg.Ledger.Table).
		Resource("eventBus", cfg.Events.BusName).
		Resource("bucket", cfg.Source.Bucket).
		Resource("container", cfg.Source.Container).
		Feature("ledger", jobs != nil).
		Feature("events", notifier != nil).
		Feature("metrics", emitMetricsFlag).
		Config("source", cfg.Source.Backend).
		Config("pollInterval", cfg.Analysis.PollInterval.String()).
		Config("output", cfg.Analysis.OutputPath).
		Log()

	return a, resolver, nil
}
