// Agent configuration types.
//
// Information Hiding:
// - Default values hidden

package agent

// DefaultMaxToolRounds bounds tool rounds per turn.
const DefaultMaxToolRounds = 10

// Config holds agent configuration.
type Config struct {
	// SystemPrompt seeds a fresh conversation. Empty means no system message.
	SystemPrompt string

	// MaxToolRounds caps the tool rounds of one turn. Zero or negative
	// means unlimited.
	MaxToolRounds int

	// Stream forwards content fragments as the model produces them.
	Stream bool
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:  "You are a helpful voice assistant. Keep answers short and conversational.",
		MaxToolRounds: DefaultMaxToolRounds,
		Stream:        true,
	}
}

// unlimitedRounds reports whether the tool loop is uncapped.
func (c Config) unlimitedRounds() bool {
	return c.MaxToolRounds <= 0
}
