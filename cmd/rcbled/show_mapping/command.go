package showmapping

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"math"
	"os"
	"strconv"

	"github.com/go-analyze/charts"
	"github.com/mattn/go-sixel"
	"github.com/mdouchement/rcbled"
	"github.com/mdouchement/rcbled/protocol"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string
	var resolution int

	cmd := &cobra.Command{
		Use:   "show-mapping",
		Short: "Show the steering angle to servo pulse mapping and the motor duty scale",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := rcbled.Load(cpath)
			if err != nil {
				return err
			}

			curve, err := rcbled.NewSteeringCurve(cfg.Steering)
			if err != nil {
				return err
			}

			fmt.Println("Steering calibration:")
			for _, p := range curve.Points() {
				fmt.Printf("  %+6.1f° => %4dµs\n", p.Angle, p.Pulse)
			}

			//
			// Compute points
			//

			minA := int(math.Floor(cfg.Steering.MinAngle))
			maxA := int(math.Ceil(cfg.Steering.MaxAngle))

			steering := charts.LineSeries{Name: "pulse"}
			var angles []string
			for a := minA; a <= maxA; a++ {
				angle := min(max(float64(a), cfg.Steering.MinAngle), cfg.Steering.MaxAngle)
				steering.Values = append(steering.Values, float64(curve.Pulse(angle).Microseconds()))
				angles = append(angles, strconv.Itoa(a))
			}

			duty := charts.LineSeries{Name: "duty"}
			var raws []string
			for b := range 256 {
				duty.Values = append(duty.Values, protocol.DutyFromByte(byte(b)))
				raws = append(raws, strconv.Itoa(b))
			}

			minP, maxP := cfg.Steering.PulseRange()

			//
			// Render charts
			//

			steer := newOption(charts.LineSeriesList{steering}, "steering", angles, max(1, (maxA-minA)/10))
			steer.XAxis.Title = "°"
			steer.YAxis = []charts.YAxisOption{
				{
					Show:                   rcbled.ToPtr(true),
					Title:                  "µs",
					Min:                    rcbled.ToPtr(float64(minP.Microseconds())),
					Max:                    rcbled.ToPtr(float64(maxP.Microseconds())),
					RangeValuePaddingScale: rcbled.ToPtr(float64(0)),
				},
			}
			if err = render(steer, resolution); err != nil {
				return fmt.Errorf("steering: %w", err)
			}

			motor := newOption(charts.LineSeriesList{duty}, "motor", raws, 16)
			motor.XAxis.Title = "byte"
			motor.YAxis = []charts.YAxisOption{
				{
					Show:                   rcbled.ToPtr(true),
					Title:                  "%",
					Min:                    rcbled.ToPtr(float64(0)),
					Max:                    rcbled.ToPtr(float64(100)),
					RangeValuePaddingScale: rcbled.ToPtr(float64(0)),
					Unit:                   10,
				},
			}
			if err = render(motor, resolution); err != nil {
				return fmt.Errorf("motor: %w", err)
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/rcbled/rcbled.yml", "Configfile path")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 1000, "The width size in pixel of each graph")

	return cmd
}

func newOption(set charts.LineSeriesList, title string, labels []string, count int) charts.LineChartOption {
	opt := charts.NewLineChartOptionWithSeries(set)
	opt.Theme = charts.GetTheme(charts.ThemeVividDark)
	opt.Padding = charts.NewBox(20, 20, 20, 20)
	opt.Title.Text = title
	opt.Title.FontStyle.FontSize = 16
	opt.Title.Offset = charts.OffsetLeft
	opt.Legend = charts.LegendOption{
		Show:     rcbled.ToPtr(true),
		Offset:   charts.OffsetCenter,
		Vertical: rcbled.ToPtr(true),
		Padding:  charts.NewBox(0, 0, 0, 20),
	}
	opt.Symbol = charts.SymbolNone
	opt.LineStrokeWidth = 2
	opt.XAxis.Show = rcbled.ToPtr(true)
	opt.XAxis.Labels = labels
	opt.XAxis.LabelCount = count
	return opt
}

func render(opt charts.LineChartOption, resolution int) error {
	p := charts.NewPainter(charts.PainterOptions{
		OutputFormat: charts.ChartOutputPNG,
		Width:        resolution,
		Height:       int(float64(resolution) / (16.0 / 9.0)),
	})

	err := p.LineChart(opt)
	if err != nil {
		return err
	}

	mPNG, err := p.Bytes()
	if err != nil {
		return err
	}

	m, _, err := image.Decode(bytes.NewReader(mPNG))
	if err != nil {
		return err
	}

	return sixel.NewEncoder(os.Stdout).Encode(m)
}
