/*
包 interpolate 将多组已分析的特征按权重混合为新的提示词并生成图像。

流水线依次为 render → compose → refine → generate → analyze：
渲染每个正权重来源的特征子句，两次补全调用分别合成与润色，
交给 synth 生成图像，最后对润色后的提示词重新抽取特征。
analyze 阶段失败时以空特征集继续，不影响已生成的图像。
*/
package interpolate
