package bird_test

import (
	"log"
	"os"
	"testing"

	"github.com/philippseith/gobird/bird"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var botID string

func TestMain(m *testing.M) {
	viper.SetConfigFile("testdata/test_config.json")
	err := viper.ReadInConfig()
	if err != nil {
		log.Panic(err)
	}

	botID = viper.GetString("botId")
	if viper.GetBool("verbose") {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Panic(err)
		}
		bird.SetLogger(logger)
	}

	os.Exit(m.Run())
}
