package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acacalc/acacalc/pkg/models"
)

type calculateFlags struct {
	ageHead      int
	ageSpouse    int
	dependents   []int
	state        string
	county       string
	zip          string
	reforms      map[string]*bool
	showProgress bool
}

func (f *calculateFlags) request() models.CalculationRequest {
	req := models.NewCalculationRequest()
	req.AgeHead = f.ageHead
	if f.ageSpouse > 0 {
		age := f.ageSpouse
		req.AgeSpouse = &age
	}
	req.DependentAges = f.dependents
	req.State = f.state
	req.County = f.county
	if f.zip != "" {
		zip := f.zip
		req.ZipCode = &zip
	}
	for id, on := range f.reforms {
		req.Select(id, *on)
	}
	return req
}

func newCalculateCmd() *cobra.Command {
	return newCalculateCmdWith(&calculateFlags{reforms: map[string]*bool{}})
}

func newCalculateCmdWith(f *calculateFlags) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Run one calculation through the cache and print the result JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			req := f.request()
			if !f.showProgress {
				resp, err := st.calculator.Calculate(ctx, req)
				if err != nil {
					return err
				}
				return writePayload(cmd.OutOrStdout(), resp.Payload)
			}

			var result json.RawMessage
			_, err = st.calculator.Stream(ctx, req, func(evt models.ProgressEvent) error {
				switch evt.Step {
				case models.StepComplete:
					result = evt.Result
				case models.StepError:
					return nil
				default:
					fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", evt.Progress, evt.Message)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return writePayload(cmd.OutOrStdout(), result)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	fl.IntVar(&f.ageHead, "age-head", 0, "age of the head of household")
	fl.IntVar(&f.ageSpouse, "age-spouse", 0, "age of the spouse (0 for none)")
	fl.IntSliceVar(&f.dependents, "dependents", nil, "dependent ages, in order")
	fl.StringVar(&f.state, "state", "", "two-letter state code")
	fl.StringVar(&f.county, "county", "", "county name")
	fl.StringVar(&f.zip, "zip", "", "five-digit zip code")
	f.reforms[models.ReformIRA] = fl.Bool("ira", true, "include the enhanced PTC extension")
	f.reforms[models.Reform700FPL] = fl.Bool("700fpl", false, "include the 700% FPL cliff bill")
	f.reforms[models.ReformAdditionalBracket] = fl.Bool("additional-bracket", false, "include the additional bracket reform")
	f.reforms[models.ReformSimplifiedBracket] = fl.Bool("simplified-bracket", false, "include the simplified bracket reform")
	fl.BoolVar(&f.showProgress, "progress", false, "print progress to stderr")
	_ = cmd.MarkFlagRequired("age-head")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("county")

	return cmd
}

func writePayload(w io.Writer, payload []byte) error {
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
