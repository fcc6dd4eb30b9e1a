package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/BeatGlow/drmfb"
	"github.com/BeatGlow/drmfb/draw"
	"github.com/BeatGlow/drmfb/kms"
	"github.com/BeatGlow/drmfb/pixel"
)

func main() {
	cardFlag := flag.String("card", "/dev/dri/card0", "DRM device node")
	modeFlag := flag.Int("mode", -1, "Mode index (default: use the preferred mode)")
	textFlag := flag.String("text", "", "Text to render on the test pattern")
	holdFlag := flag.Duration("hold", 10*time.Second, "How long to hold the display")
	verboseFlag := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <output>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
	})
	if *verboseFlag {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(logger, *cardFlag, flag.Arg(0), *modeFlag, *textFlag, *holdFlag); err != nil {
		logger.Fatal(err)
	}
}

func run(logger *log.Logger, card, output string, mode int, text string, hold time.Duration) error {
	c, err := kms.Open(card)
	if err != nil {
		return err
	}
	dumb := c.SupportsDumbBuffers()
	_ = c.Close()
	if !dumb {
		return fmt.Errorf("%s does not support dumb buffers", card)
	}

	session, err := drmfb.Open(card, output, mode)
	if err != nil {
		return err
	}
	defer session.Close()
	logger.Info("acquired output", "session", session, "stride", session.Stride())

	img := session.Image()
	draw.Gradient(img, img.Bounds(), 0)
	draw.Rectangle(img, img.Bounds(), color.White)
	if text != "" {
		if err = drawText(img, text); err != nil {
			return err
		}
	}

	if err = session.Show(); err != nil {
		return err
	}
	logger.Info("showing test pattern", "hold", hold)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(hold):
	case s := <-sig:
		logger.Info("interrupted", "signal", s)
	}

	// Restores the prior CRTC state; the deferred Close is then a no-op.
	return session.Close()
}

func drawText(img *pixel.ABGRImage, text string) error {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}

	const size = 32
	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)
	ctx.SetSrc(image.NewUniform(color.White))

	_, err = ctx.DrawString(text, freetype.Pt(20, 20+size))
	return err
}
