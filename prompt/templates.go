package prompt

import "fmt"

const refineUserMessage = "Please refine the prompt with synonyms or added flair."

const composeUserMessage = "Compose the image prompt from these features."

const enhanceSystemPrompt = "Enhance this image generation prompt to add more detail and clarity while maintaining the original intent."

func refineSystemPrompt(userPrompt string) string {
	return fmt.Sprintf(`Refine the user's prompt to be more descriptive and vivid for an image generation system.
Avoid extra text like 'Generating...' or disclaimers.
Return only the refined prompt text itself.

Original prompt: %s`, userPrompt)
}

func composeSystemPrompt(features string) string {
	return fmt.Sprintf(`You are an assistant that combines multiple visual features into a cohesive image prompt.

Features: %s

Requirements:
1. Return a single concise sentence or short paragraph describing an image that blends all these features.
2. Avoid any phrases like "Generating...", "Sure, here it is", etc.
3. Only return the prompt itself (no JSON needed here).`, features)
}

func refineComposedSystemPrompt(base string) string {
	return fmt.Sprintf(`Refine the following image prompt to be more descriptive, artistic, and vivid,
but still concise. Return only the refined prompt text, nothing else.

Original prompt: %s`, base)
}
