package link

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTopicLength is the longest topic or filter accepted, in bytes.
const MaxTopicLength = 1023

// Topic wildcard characters.
const (
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
	topicSeparator      = "/"
)

// validateTopicName checks a topic used for publishing.
// Publish topics must be concrete: wildcards are rejected.
func validateTopicName(topic string) error {
	if err := validateTopicCommon(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, singleLevelWildcard+multiLevelWildcard) {
		return fmt.Errorf("%w: wildcards are not allowed in publish topic %q", ErrInvalidArgument, topic)
	}
	return nil
}

// validateTopicFilter checks a topic used for subscribing.
//
// Wildcards must occupy a whole level and "#" may only appear last:
//
//	sensor/+/temperature  valid
//	sensor/#              valid
//	sensor/te+            invalid
//	sensor/#/temperature  invalid
func validateTopicFilter(filter string) error {
	if err := validateTopicCommon(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, topicSeparator)
	for i, level := range levels {
		switch {
		case level == multiLevelWildcard:
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q must be the last level in %q", ErrInvalidArgument, multiLevelWildcard, filter)
			}
		case level == singleLevelWildcard:
		case strings.ContainsAny(level, singleLevelWildcard+multiLevelWildcard):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidArgument, filter)
		}
	}
	return nil
}

func validateTopicCommon(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidArgument)
	}
	if len(topic) > MaxTopicLength {
		return fmt.Errorf("%w: topic length %d exceeds maximum %d bytes", ErrInvalidArgument, len(topic), MaxTopicLength)
	}
	if !utf8.ValidString(topic) || strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: topic must be valid UTF-8 without NUL", ErrInvalidArgument)
	}
	return nil
}

// hasWildcard reports whether a filter contains any wildcard level.
func hasWildcard(filter string) bool {
	return strings.ContainsAny(filter, singleLevelWildcard+multiLevelWildcard)
}

// MatchTopic reports whether topic matches filter using MQTT wildcard rules.
//
//   - "+" matches exactly one level
//   - "#" matches zero or more trailing levels
//
// Topics beginning with "$" are not matched by a leading wildcard.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, singleLevelWildcard) || strings.HasPrefix(filter, multiLevelWildcard)) {
		return false
	}

	filterLevels := strings.Split(filter, topicSeparator)
	topicLevels := strings.Split(topic, topicSeparator)

	for i, level := range filterLevels {
		if level == multiLevelWildcard {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != singleLevelWildcard && level != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}
