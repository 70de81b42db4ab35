package prompt

import "github.com/kaiven11/artical-generate/internal/types"

// builtinDefault returns the hard-coded fallback prose for a stage/band
// when no matching PromptTemplate is active in the Store (§4.B step 3).
// Wording and objective framing are resolved against
// original_source/backend/app/services/prompt_manager.py's
// _get_optimization_objective/_build_dynamic_prompt, re-expressed in Go as
// plain string constants rather than the original's role/objective/
// requirements assembly, since this is strictly the no-template fallback
// path.
func builtinDefault(stage types.PromptType, band types.Band) string {
	switch stage {
	case types.PromptTranslation:
		return defaultTranslationPrompt
	case types.PromptCreation:
		return defaultCreationPrompt
	case types.PromptAIReduction:
		return defaultAIReductionPrompt
	case types.PromptOptimisation:
		switch band {
		case types.BandHeavy:
			return defaultOptimiseHeavyPrompt
		case types.BandStandard:
			return defaultOptimiseStandardPrompt
		default:
			return defaultOptimiseLightPrompt
		}
	default:
		return defaultOptimiseStandardPrompt
	}
}

const defaultTranslationPrompt = `你是一位专业的翻译专家。请将以下内容翻译为流畅、地道的目标语言，
保留原文的段落结构与专有名词，不要添加任何解释或说明。

原文内容：
{content}

目标字数：{target_length} 字。`

const defaultCreationPrompt = `你是一位专业的内容创作专家。请围绕以下主题创作一篇原创文章：

主题：{topic}
关键词：{keywords}
创作要求：{requirements}
目标字数：{target_length} 字

请确保文章内容原创、结构清晰、语言流畅，直接输出文章正文，不要添加任何说明。`

// defaultOptimiseLightPrompt: cosmetic humanisation, preserve style and
// structure (§4.G band "light").
const defaultOptimiseLightPrompt = `你是一位专业的内容编辑。请对以下内容进行轻度优化，提升自然度和可读性，
同时保持原有的写作风格与结构。

具体要求：
1. 调整个别生硬的措辞，使其更符合自然表达习惯
2. 保持原文的段落结构和整体风格
3. 不改变文章的核心观点与信息

原文内容：
{content}

请直接输出优化后的内容，不要添加任何解释或说明。`

// defaultOptimiseStandardPrompt: rewrite sentence structure, add voice and
// commentary (§4.G band "standard").
const defaultOptimiseStandardPrompt = `你是一位经验丰富的内容编辑。请对以下内容进行中度改写，显著降低AI生成痕迹。

具体要求：
1. 重组部分句子结构，打破过于规整的句式
2. 加入作者的个人观点、语气或评论性表达
3. 调整用词，避免重复的模板化表达
4. 保持信息准确，不改变核心事实

检测反馈：{detection_feedback}

原文内容：
{content}

请直接输出优化后的内容，不要添加任何解释或说明。`

// defaultOptimiseHeavyPrompt: deep restructure, non-uniform sentence
// shapes, subjective colour, colloquialism (§4.G band "heavy").
const defaultOptimiseHeavyPrompt = `你是一位资深的内容改写专家。请对以下内容进行深度重构，彻底消除AI生成特征。

具体要求：
1. 完全重新组织段落与句子结构，句子长短错落有致
2. 大量加入主观色彩、口语化表达与个人化语气
3. 用具体的例子、细节或类比替换抽象泛泛的表述
4. 打乱过于工整的逻辑框架，保留信息但改变呈现方式

检测反馈：{detection_feedback}

原文内容：
{content}

请直接输出优化后的内容，不要添加任何解释或说明。`

// defaultAIReductionPrompt targets detector-surface features rather than
// surface polish, used when re-entering the loop after a previously
// accepted optimisation re-detects above threshold (§4.G).
const defaultAIReductionPrompt = `你是一位专门针对AI检测规避的内容改写专家。以下内容此前已通过人工润色，
但再次检测时AI概率仍然偏高，请针对检测器可能识别的特征进行定向改写，
而不仅仅是表面措辞的调整。

具体要求：
1. 打破统计规律明显的句长分布与连接词使用模式
2. 引入不对称的信息密度与节奏变化
3. 替换常见AI生成的过渡句式与总结性收尾
4. 保留事实与结构完整性

当前AI概率：{ai_probability}%，目标阈值：{threshold}%

原文内容：
{content}

请直接输出改写后的内容，不要添加任何解释或说明。`
