package pipeline

import "time"

// Config sizes the queues and bounds the waits of a Coordinator.
type Config struct {
	InputQueueSize   int           `yaml:"input_queue_size"`
	MessageQueueSize int           `yaml:"message_queue_size"`
	AudioQueueSize   int           `yaml:"audio_queue_size"`
	ResponseTimeout  time.Duration `yaml:"response_timeout"` // max wait between two items of one reply
	JoinTimeout      time.Duration `yaml:"join_timeout"`     // max wait per worker on Stop
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		InputQueueSize:   4,
		MessageQueueSize: 256,
		AudioQueueSize:   16,
		ResponseTimeout:  10 * time.Second,
		JoinTimeout:      5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InputQueueSize <= 0 {
		c.InputQueueSize = d.InputQueueSize
	}
	if c.MessageQueueSize <= 0 {
		c.MessageQueueSize = d.MessageQueueSize
	}
	if c.AudioQueueSize <= 0 {
		c.AudioQueueSize = d.AudioQueueSize
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = d.JoinTimeout
	}
	return c
}
