package anthropic

// CacheTTLShort is the default ephemeral cache lifetime.
const CacheTTLShort = "5m"

// BuildCachedSystemBlocks returns the system prompt as a single block with
// a cache breakpoint. The phase instructions are identical across messages,
// so consecutive calls in a batch read them from the prompt cache.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	if text == "" {
		return nil
	}
	if ttl == "" {
		ttl = CacheTTLShort
	}
	return []SystemBlock{{
		Text:         text,
		CacheControl: &CacheControl{TTL: ttl},
	}}
}
