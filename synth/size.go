package synth

import (
	"fmt"

	"github.com/BaSui01/promptfusion/llm/image"
)

// ResolveSize 返回本地扩散模型实际使用的 "WxH"；不在支持集合中的尺寸替换为 512x512
func ResolveSize(size string) (string, bool) {
	w, h, substituted := image.ResolveDiffusionSize(size)
	return fmt.Sprintf("%dx%d", w, h), substituted
}
