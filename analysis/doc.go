/*
包 analysis 将文本提示与可选图像解析为带权特征集。

# 组成

  - Extractor：一次补全调用，将提示词解析为 category → {term: score}，
    严格解码后返回；无法解析时软失败为空集。
  - Scorer：以 CLIP 类联合嵌入对候选词打分（余弦 ×100 后类内 softmax，
    保留 > 0.2 的词）；编码器缺失或调用失败时降级为空集。
  - Analyzer：extract → score → merge 三阶段流水线，纯文本结果按提示词哈希缓存。
*/
package analysis
