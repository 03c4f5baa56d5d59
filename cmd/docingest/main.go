// Command docingest extracts text, metadata, and images from PDF files,
// degrading gracefully on broken or locked input.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/StrongheartedX/onyx/ingest"
	"github.com/StrongheartedX/onyx/observability"
	"github.com/StrongheartedX/onyx/ocr"
	_ "github.com/StrongheartedX/onyx/ocr/tesseract"
	"github.com/StrongheartedX/onyx/secrets"
	"github.com/StrongheartedX/onyx/slackfmt"
)

type options struct {
	path           string
	configPath     string
	password       string
	passwordSecret string
	envPath        string
	images         bool
	useOCR         bool
	probe          bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "docingest: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "docingest: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: docingest [flags] <file>\n")
		flag.PrintDefaults()
	}
	configPath := flag.String("config", "", "Path to a TOML configuration file")
	password := flag.String("password", "", "Password tried once against encrypted input")
	passwordSecret := flag.String("password-secret", "", "Secret name resolved for the password")
	envPath := flag.String("env", "", "Dotenv file loaded into the environment before running")
	images := flag.Bool("images", false, "Extract embedded images")
	useOCR := flag.Bool("ocr", false, "Recover text from image-only pages")
	probe := flag.Bool("probe", false, "Report protection status and exit")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing file path")
	}
	opts.path = flag.Arg(0)
	opts.configPath = *configPath
	opts.password = *password
	opts.passwordSecret = *passwordSecret
	opts.envPath = *envPath
	opts.images = *images
	opts.useOCR = *useOCR
	opts.probe = *probe
	return opts, nil
}

func run(opts options) error {
	if opts.envPath != "" {
		if err := godotenv.Load(opts.envPath); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if opts.probe {
		protected := ingest.IsProtectedFile(filepath.Base(opts.path), f)
		fmt.Printf("%s: protected=%v\n", opts.path, protected)
		return nil
	}

	ctx := context.Background()
	password, err := resolvePassword(ctx, opts, cfg)
	if err != nil {
		return err
	}

	ingestOpts := []ingest.Option{
		ingest.WithPassword(password),
		ingest.WithTracer(observability.OTelTracer("docingest")),
	}
	if opts.images || cfg.Ingest.Images {
		ingestOpts = append(ingestOpts, ingest.WithImages())
	}
	if opts.useOCR || cfg.Ingest.OCR {
		ingestOpts = append(ingestOpts, ingest.WithOCR(ocr.DefaultEngine(), cfg.Ingest.OCRLanguages...))
	}

	result := ingest.Read(ctx, f, ingestOpts...)

	if cfg.Output.ImageDir != "" {
		if err := writeImages(cfg.Output.ImageDir, result.Images); err != nil {
			return err
		}
	}
	return emit(cfg.Output.Format, result)
}

// resolvePassword prefers the explicit flag, then the named secret looked up
// through the environment and the configured dotenv file.
func resolvePassword(ctx context.Context, opts options, cfg fileConfig) (string, error) {
	if opts.password != "" || opts.passwordSecret == "" {
		return opts.password, nil
	}
	var source secrets.Source = secrets.EnvSource{}
	if cfg.Secrets.EnvFile != "" {
		fs, err := secrets.NewFileSource(cfg.Secrets.EnvFile)
		if err != nil {
			return "", err
		}
		source = fs
	}
	cache := secrets.NewCache(source)
	pw, err := cache.Get(ctx, secrets.Key{Namespace: cfg.Secrets.Namespace, Name: opts.passwordSecret})
	if err != nil {
		return "", fmt.Errorf("resolve password secret: %w", err)
	}
	return pw, nil
}

func writeImages(dir string, images []ingest.Image) error {
	if len(images) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, img := range images {
		if err := os.WriteFile(filepath.Join(dir, img.Name), img.Data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func emit(format string, result ingest.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "slack":
		fmt.Println(slackfmt.Render(result.Text))
	default:
		for k, v := range result.Metadata {
			fmt.Printf("%s: %s\n", k, v)
		}
		if len(result.Metadata) > 0 {
			fmt.Println()
		}
		fmt.Println(result.Text)
	}
	return nil
}
