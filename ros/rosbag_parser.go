package ros

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()

	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}

	return rb, nil
}

// TopicNames returns the sorted topics of the bag's connections.
func TopicNames(rb *rosbag.RosBag) []string {
	seen := map[string]bool{}
	for _, conn := range rb.Connections {
		seen[conn.HeaderTopic] = true
	}
	topics := make([]string, 0, len(seen))
	for topic := range seen {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// TopicTypes maps each topic of the bag to its message type.
func TopicTypes(rb *rosbag.RosBag) map[string]string {
	types := make(map[string]string, len(rb.Connections))
	for _, conn := range rb.Connections {
		types[conn.HeaderTopic] = conn.ConnectionType
	}
	return types
}

// jsonTopicKey is the key gobag files the JSON lines of a topic under.
func jsonTopicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// WriteTopicsJSON writes the messages of the bag as JSON lines, filtered by topic and by a
// [startTime, endTime] range of receive seconds. Zero times disable the time filter.
func WriteTopicsJSON(rb *rosbag.RosBag, w io.Writer, startTime, endTime int64, topicsFilter []string) error {
	var timeFilterFunc func(int64) bool
	if startTime == 0 || endTime == 0 {
		timeFilterFunc = func(timestamp int64) bool {
			return true
		}
	} else {
		timeFilterFunc = func(timestamp int64) bool {
			return timestamp >= startTime && timestamp <= endTime
		}
	}

	var topicFilterFunc func(string) bool
	if len(topicsFilter) == 0 {
		topicFilterFunc = func(string) bool {
			return true
		}
	} else {
		topicsFilterMap := make(map[string]bool)
		for _, topic := range topicsFilter {
			topicsFilterMap[topic] = true
		}
		topicFilterFunc = func(topic string) bool {
			_, ok := topicsFilterMap[topic]
			return ok
		}
	}

	if err := rb.ParseTopicsToJSON("", timeFilterFunc, topicFilterFunc, true); err != nil {
		return errors.Wrapf(err, "error while parsing bag to JSON")
	}

	keys := make([]string, 0, len(rb.TopicsAsJSON))
	for key := range rb.TopicsAsJSON {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := rb.TopicsAsJSON[key].WriteTo(w); err != nil {
			return err
		}
	}
	return nil
}

// AllMessagesForTopic returns all messages for a specific topic in the ros bag.
func AllMessagesForTopic(rb *rosbag.RosBag, topic string) ([]map[string]interface{}, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	msgs := rb.TopicsAsJSON[jsonTopicKey(topic)]
	if msgs == nil {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}

	all := []map[string]interface{}{}

	for {
		data, err := msgs.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		message := map[string]interface{}{}
		err = json.Unmarshal(data, &message)
		if err != nil {
			return nil, err
		}

		all = append(all, message)
	}

	return all, nil
}

// ImuMessagesForTopic decodes every Imu message of topic.
func ImuMessagesForTopic(rb *rosbag.RosBag, topic string) ([]ImuMessage, error) {
	all, err := AllMessagesForTopic(rb, topic)
	if err != nil {
		return nil, err
	}
	msgs := make([]ImuMessage, 0, len(all))
	for _, m := range all {
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		var msg ImuMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, errors.Wrapf(err, "topic %s does not hold Imu messages", topic)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
