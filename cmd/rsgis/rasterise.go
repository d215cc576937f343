package main

import (
	"github.com/spf13/cobra"

	"github.com/dotysan/rsgislib/vectorutils"
)

func rasteriseCommand() *cobra.Command {
	var opts vectorutils.RasteriseOpts
	var vector, layer, template, output string

	cmd := &cobra.Command{
		Use:   "rasterise",
		Short: "Burn a vector layer onto the grid of a template image",
		RunE: func(cmd *cobra.Command, args []string) error {
			return vectorutils.RasteriseVecLyr(vector, layer, template, output, opts)
		},
	}

	cmd.Flags().StringVar(&vector, "vector", "", "Input vector file")
	cmd.Flags().StringVar(&layer, "layer", "", "Layer name (defaults to the first layer)")
	cmd.Flags().StringVar(&template, "template", "", "Template image supplying extent and resolution")
	cmd.Flags().StringVar(&output, "output", "", "Output image")
	cmd.Flags().Float64Var(&opts.BurnValue, "burn", 1, "Pixel value to burn")
	cmd.Flags().StringVar(&opts.Attribute, "attribute", "", "Burn this feature attribute instead of a fixed value")
	cmd.Flags().StringVar(&opts.Format, "format", "GTiff", "Output GDAL driver")
	cmd.Flags().StringVar(&opts.DataType, "datatype", "Byte", "Output data type")
	cmd.Flags().BoolVar(&opts.AllTouched, "at", false, "Burn all touched pixels, not only covered centres")
	_ = cmd.MarkFlagRequired("vector")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
