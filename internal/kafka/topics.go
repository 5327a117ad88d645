package kafka

import (
	"errors"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
)

// EnsureTopicsExist creates Kafka topics if they don't already exist
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
		if err != nil {
			if errors.Is(err, kafka.TopicAlreadyExists) {
				log.Debug("KAFKA", "Topic "+topic+" already exists")
				continue
			}
			// Keep going; the remaining topics may still be creatable.
			log.Warn("KAFKA", "Error creating topic "+topic+": "+err.Error())
			continue
		}
		log.LogKafka("CREATE", topic, "topic created")
	}
	return nil
}
