package initial

import (
	"strings"

	"FormaLink/internal/config"
	"FormaLink/internal/modules/action/infrastructure/mq"
	"FormaLink/internal/modules/action/infrastructure/mq/kafka"
	"FormaLink/pkg/zlog"
)

// KafkaPublisher 动作转发用的发布器，由 api/http 注入调度网关
var KafkaPublisher mq.Publisher

func init() {
	conf := config.GetConfig()
	brokers := conf.KafkaConfig.Brokers
	if len(brokers) == 0 {
		zlog.Fatal("kafka brokers 未配置，动作转发无法工作")
		return
	}

	p, err := kafka.NewSaramaPublisher(kafka.PublisherConfig{
		Brokers:  brokers,
		ClientID: conf.KafkaConfig.ClientID,
	})
	if err != nil {
		zlog.Fatal("kafka publisher init failed: " + err.Error())
		return
	}
	KafkaPublisher = p
	zlog.Info("Kafka publisher ready: " + strings.Join(brokers, ","))
}
