// Package main provides the trackformer demo CLI: it builds an encoder
// stack, runs a forward pass over a randomly padded batch and reports
// shapes and timings.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ftag-ml/trackformer/backend/cpu"
	"github.com/ftag-ml/trackformer/nn"
	"github.com/ftag-ml/trackformer/tensor"
)

const version = "v0.1.0-dev"

func main() {
	var (
		numLayers  = flag.Int("layers", 4, "number of encoder layers")
		embedDim   = flag.Int("embed", 128, "embedding dimension")
		numHeads   = flag.Int("heads", 8, "number of attention heads")
		numKVHeads = flag.Int("kv-heads", 0, "number of key/value heads (0 = same as heads)")
		outDim     = flag.Int("out", 0, "output projection dimension (0 = none)")
		batch      = flag.Int("batch", 8, "batch size")
		seqLen     = flag.Int("seq", 64, "maximum sequence length")
		flash      = flag.Bool("flash", false, "use the flash attention kernel (unmasked)")
		window     = flag.Int("window", 0, "sliding window size for flash attention (0 = global)")
		repeats    = flag.Int("repeats", 3, "number of timed forward passes")
		debug      = flag.Bool("debug", false, "enable debug logging")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("trackformer %s\n", version)
		return
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	backend := cpu.New()

	cfg := nn.DefaultTransformerConfig(*numLayers, *embedDim, *numHeads)
	cfg.OutDim = *outDim
	cfg.Attention.NumKVHeads = *numKVHeads
	if *flash {
		cfg.Attention.Backend = nn.Flash
		cfg.Attention.WindowSize = *window
	}

	stack := nn.NewTransformer(cfg, backend)
	log.Info().
		Int("layers", *numLayers).
		Int("embed_dim", *embedDim).
		Int("heads", *numHeads).
		Str("attention", cfg.Attention.Backend.String()).
		Int("parameters", stack.NumParameters()).
		Msg("built encoder stack")

	x := tensor.Randn[float32](tensor.Shape{*batch, *seqLen, *embedDim}, backend)

	// Flash attention rejects masks, so the padded demo only runs on the
	// generic kernel.
	var pad *tensor.Tensor[bool, *cpu.Backend]
	if !*flash {
		pad = randomPadding(*batch, *seqLen, backend)
	}

	in := nn.Single(x, pad)
	for i := 0; i < *repeats; i++ {
		start := time.Now()
		out := stack.Forward(in, nil)
		elapsed := time.Since(start)
		log.Info().
			Int("pass", i+1).
			Ints("input", x.Shape()).
			Ints("output", out.Shape()).
			Dur("elapsed", elapsed).
			Msg("forward pass")
	}
}

// randomPadding builds a (batch, seqLen) mask where each batch entry keeps a
// random prefix of the sequence and pads the rest.
func randomPadding(batch, seqLen int, backend *cpu.Backend) *tensor.Tensor[bool, *cpu.Backend] {
	data := make([]bool, batch*seqLen)
	for b := 0; b < batch; b++ {
		valid := 1 + rand.Intn(seqLen) //nolint:gosec // demo data, not crypto
		for s := valid; s < seqLen; s++ {
			data[b*seqLen+s] = true
		}
	}
	pad, err := tensor.FromSlice(data, tensor.Shape{batch, seqLen}, backend)
	if err != nil {
		log.Fatal().Err(err).Msg("building padding mask")
	}
	return pad
}
