package imagecalc

import (
	"context"

	"github.com/airbusgeo/godal"
)

// normDiff guards the denominator so masked or flat areas come out as
// the no-data value instead of NaN.
func normDiff(ctx context.Context, img string, bandA, bandB int, outPath, format string) error {
	bands := []BandDefn{
		{BandName: "a", FileName: img, BandIndex: bandA},
		{BandName: "b", FileName: img, BandIndex: bandB},
	}
	expression := "(a + b) == 0 ? -999.0 : (a - b) / (a + b)"
	return BandMath(ctx, outPath, expression, format, godal.Float32, bands)
}

// CalcNDVI computes the normalised difference vegetation index
// (nir - red) / (nir + red).
func CalcNDVI(ctx context.Context, img string, redBand, nirBand int, outPath, format string) error {
	return normDiff(ctx, img, nirBand, redBand, outPath, format)
}

// CalcWBI computes the water band index blue / nir.
func CalcWBI(ctx context.Context, img string, blueBand, nirBand int, outPath, format string) error {
	bands := []BandDefn{
		{BandName: "blue", FileName: img, BandIndex: blueBand},
		{BandName: "nir", FileName: img, BandIndex: nirBand},
	}
	expression := "nir == 0 ? -999.0 : blue / nir"
	return BandMath(ctx, outPath, expression, format, godal.Float32, bands)
}

// CalcNDWI computes the normalised difference water index
// (nir - swir) / (nir + swir).
func CalcNDWI(ctx context.Context, img string, nirBand, swirBand int, outPath, format string) error {
	return normDiff(ctx, img, nirBand, swirBand, outPath, format)
}

// CalcGNDWI computes the green normalised difference water index
// (green - nir) / (green + nir).
func CalcGNDWI(ctx context.Context, img string, greenBand, nirBand int, outPath, format string) error {
	return normDiff(ctx, img, greenBand, nirBand, outPath, format)
}

// CalcGMNDWI computes the modified normalised difference water index
// (green - swir) / (green + swir).
func CalcGMNDWI(ctx context.Context, img string, greenBand, swirBand int, outPath, format string) error {
	return normDiff(ctx, img, greenBand, swirBand, outPath, format)
}

// CalcNBR computes the normalised burn ratio (nir - swir) / (nir + swir).
func CalcNBR(ctx context.Context, img string, nirBand, swirBand int, outPath, format string) error {
	return normDiff(ctx, img, nirBand, swirBand, outPath, format)
}
