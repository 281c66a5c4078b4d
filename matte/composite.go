package matte

// MaskThreshold 大于该值的遮罩像素视为前景
const MaskThreshold = 128

// Composite 二值化遮罩并写入 alpha 通道，返回新的 4 通道图
// 原有 alpha 直接覆盖，RGB 不变，灰度图复制到 RGB
func Composite(r *Raster, m *Mask) (*Raster, error) {
	if err := checkRaster(StageComposite, r); err != nil {
		return nil, err
	}
	if m == nil || m.Width != r.Width || m.Height != r.Height || len(m.Pix) != m.Width*m.Height {
		mw, mh := 0, 0
		if m != nil {
			mw, mh = m.Width, m.Height
		}
		return nil, newError(StageComposite, ErrDimensionMismatch, "mask %dx%d, image %dx%d", mw, mh, r.Width, r.Height)
	}

	dst := NewRaster(r.Width, r.Height, 4)
	for i, v := range m.Pix {
		p := dst.Pix[i*4 : i*4+4]
		switch r.Channels {
		case 1:
			g := r.Pix[i]
			p[0], p[1], p[2] = g, g, g
		default:
			s := r.Pix[i*r.Channels:]
			p[0], p[1], p[2] = s[0], s[1], s[2]
		}
		if v > MaskThreshold {
			p[3] = 255
		} else {
			p[3] = 0
		}
	}
	return dst, nil
}
