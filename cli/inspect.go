package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Project-Tango-for-Robotics/tango-to-bagfiles/ros"
)

// InspectAction is the corresponding action for 'inspect'.
func InspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("inspect takes exactly one BAG")
	}
	rb, err := ros.ReadBag(c.Args().First())
	if err != nil {
		return err
	}

	topic := c.String(topicFlag)
	if topic == "" {
		types := ros.TopicTypes(rb)
		for _, name := range ros.TopicNames(rb) {
			printf(c.App.Writer, "%s\t%s", name, types[name])
		}
		return nil
	}
	if _, ok := ros.TopicTypes(rb)[topic]; !ok {
		return errors.Errorf("bag has no topic %q", topic)
	}
	return ros.WriteTopicsJSON(rb, c.App.Writer, 0, 0, []string{topic})
}
