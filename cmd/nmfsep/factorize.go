// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/audio"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/dsp/stft"
	"github.com/AshishAbrahamSamuel/Music-Source-Seperation-using-NMF/internal/nmf"
)

func newFactorizeCmd() *cobra.Command {
	var flags modelFlags

	cmd := &cobra.Command{
		Use:   "factorize <mixture.wav>",
		Short: "Factorize a spectrogram and print the loss trajectory",
		Long: `Factorize runs the chosen NMF variant on the mono power spectrogram of
the input without reconstructing audio. One line per iteration with the
divergence, useful for comparing models and picking iteration counts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0]) // #nosec G304 -- user-supplied CLI input
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			defer f.Close()

			clip, err := audio.Decode(f)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}

			trans, err := stft.New(flags.fftSize, flags.hopSize)
			if err != nil {
				return fmt.Errorf("stft: %w", err)
			}
			spec := trans.Transform(clip.Mono())

			nu := flags.nu
			if flags.model == string(nmf.ModelT) && nu == 0 {
				nu = 1000
			}
			fac, err := nmf.New(nmf.Model(flags.model), nmf.Options{
				Rank:      flags.rank,
				Domain:    flags.domain,
				Algorithm: flags.algorithm,
				Nu:        nu,
				Tolerance: flags.tolerance,
				Seed:      flags.seed,
			})
			if err != nil {
				return fmt.Errorf("factorize: %w", err)
			}

			res, err := fac.Factorize(cmd.Context(), spec.Power(), flags.iterations)
			if err != nil {
				return fmt.Errorf("factorize: %w", err)
			}

			fmt.Printf("model=%s rank=%d bins=%d frames=%d\n",
				flags.model, flags.rank, spec.Bins(), spec.Frames())
			for i, l := range res.Loss {
				fmt.Printf("iter %3d  loss %.6g\n", i+1, l)
			}
			return nil
		},
	}
	addModelFlags(cmd, &flags)
	return cmd
}
