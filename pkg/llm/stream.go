package llm

// DeltaPath is the gjson path of the incremental text inside a normalized
// stream frame: data: {"choices":[{"delta":{"content":"..."}}]}
const DeltaPath = "choices.0.delta.content"

// DoneSentinel terminates a normalized stream.
const DoneSentinel = "[DONE]"
