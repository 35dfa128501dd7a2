/*
包 embedding 提供 CLIP 类视觉-文本向量模型的接入，用于计算图像与描述词之间的相似度。

# 核心接口

  - Encoder：EmbedImage / EmbedTexts / Name，图像与文本共享同一向量空间。
  - ClipProvider：/v1/embeddings 客户端，支持 Jina CLIP 与 Infinity 两种输入格式。

# 向量工具

  - Normalize：归一化为单位向量（零向量返回 ErrZeroVector）。
  - Dot：点积；两个单位向量的点积即余弦相似度。

# 使用方式

	cfg := embedding.DefaultClipConfig()
	cfg.APIKey = "jina_..."
	enc := embedding.NewClipProvider(cfg)

	img, err := enc.EmbedImage(ctx, pngBytes)
	txt, err := enc.EmbedTexts(ctx, []string{"This image shows deep blue color"})
*/
package embedding
