package patscan

import (
	"image"
	"image/color"
)

// imgToNRGBA converts any image type to *image.NRGBA with min-point at (0, 0).
func imgToNRGBA(img image.Image) *image.NRGBA {
	srcBounds := img.Bounds()
	if srcBounds.Min.X == 0 && srcBounds.Min.Y == 0 {
		if src0, ok := img.(*image.NRGBA); ok {
			return src0
		}
	}

	dstBounds := srcBounds.Sub(srcBounds.Min)
	dst := image.NewNRGBA(dstBounds)
	dw, dh := dstBounds.Dx(), dstBounds.Dy()

	switch src := img.(type) {
	case *image.NRGBA:
		rowSize := dw * 4
		for y := 0; y < dh; y++ {
			di := dst.PixOffset(0, y)
			si := src.PixOffset(srcBounds.Min.X, srcBounds.Min.Y+y)
			copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
		}
	case *image.YCbCr:
		for y := 0; y < dh; y++ {
			di := dst.PixOffset(0, y)
			for x := 0; x < dw; x++ {
				sx, sy := srcBounds.Min.X+x, srcBounds.Min.Y+y
				siy := src.YOffset(sx, sy)
				sic := src.COffset(sx, sy)
				r, g, b := color.YCbCrToRGB(src.Y[siy], src.Cb[sic], src.Cr[sic])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = b
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		for y := 0; y < dh; y++ {
			di := dst.PixOffset(0, y)
			for x := 0; x < dw; x++ {
				c := color.NRGBAModel.Convert(img.At(srcBounds.Min.X+x, srcBounds.Min.Y+y)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = c.A
				di += 4
			}
		}
	}
	return dst
}
