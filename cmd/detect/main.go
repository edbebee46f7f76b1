package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"detectview/internal/app"
	"detectview/internal/config"
	"detectview/internal/dto"
	"detectview/internal/geometry"
	"detectview/internal/logger"
	"detectview/internal/pipeline"
	"detectview/internal/service/ai"

	"github.com/spf13/cobra"
)

// Options holds the flags of the detect command.
type Options struct {
	DisplayWidth  float64
	DisplayHeight float64
	MaxResults    int
	Flip          bool
	AnnotatePath  string
	ObjectBackend string
	FaceBackend   string
	Quiet         bool
}

var opts Options

var rootCmd = &cobra.Command{
	Use:   "detect <image_path>",
	Short: "Run object and face detection on one image and print the frame as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runDetect(cmd.Context(), args[0], opts)
	},
}

func init() {
	rootCmd.Flags().Float64Var(&opts.DisplayWidth, "display-width", 0, "Width the image is displayed at (default: natural width)")
	rootCmd.Flags().Float64Var(&opts.DisplayHeight, "display-height", 0, "Height the image is displayed at (default: natural height)")
	rootCmd.Flags().IntVarP(&opts.MaxResults, "max-results", "n", 0, "Maximum number of objects (default: MAX_RESULTS or 6)")
	rootCmd.Flags().BoolVar(&opts.Flip, "flip", false, "Mirror face boxes horizontally")
	rootCmd.Flags().StringVarP(&opts.AnnotatePath, "annotate", "o", "", "Write the image with boxes drawn on it to this JPEG file")
	rootCmd.Flags().StringVar(&opts.ObjectBackend, "object-backend", "", "Object detector backend: dnn or remote (default: OBJECT_BACKEND)")
	rootCmd.Flags().StringVar(&opts.FaceBackend, "face-backend", "", "Face detector backend: dnn or remote (default: FACE_BACKEND)")
	rootCmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Suppress log output")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDetect(ctx context.Context, imagePath string, opts Options) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image file: %w", err)
	}

	cfg := config.Load()
	if opts.MaxResults > 0 {
		cfg.MaxResults = opts.MaxResults
	}
	if opts.Flip {
		cfg.FlipHorizontal = true
	}
	if opts.ObjectBackend != "" {
		cfg.ObjectBackend = opts.ObjectBackend
	}
	if opts.FaceBackend != "" {
		cfg.FaceBackend = opts.FaceBackend
	}

	var logOut io.Writer = os.Stderr
	if opts.Quiet {
		logOut = io.Discard
	}
	log := logger.NewWriterLogger(logOut)

	p, err := app.NewPipeline(cfg, log, pipeline.NewStore())
	if err != nil {
		return err
	}
	defer p.Close()

	var runOpts []pipeline.RunOption
	if opts.DisplayWidth != 0 || opts.DisplayHeight != 0 {
		display := geometry.Size{Width: opts.DisplayWidth, Height: opts.DisplayHeight}
		if !display.Valid() {
			return fmt.Errorf("%w: display size %s", geometry.ErrInvalidSize, display)
		}
		runOpts = append(runOpts, pipeline.WithDisplaySize(display))
	}

	frame, runErr := p.Orchestrator.Run(ctx, imgData, runOpts...)
	if runErr != nil && !errors.Is(runErr, pipeline.ErrDecodeFailed) {
		return runErr
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(dto.NewFrameData(frame)); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	if opts.AnnotatePath != "" {
		annotated, err := ai.Annotate(imgData, frame.Display, frame.Overlays())
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.AnnotatePath, annotated, 0644); err != nil {
			return fmt.Errorf("failed to write annotated image: %w", err)
		}
		fmt.Fprintf(os.Stderr, "🖼  Annotated image written to %s\n", opts.AnnotatePath)
	}

	// a detector failure still prints the frame, but the exit status reports it
	return frame.Err()
}
