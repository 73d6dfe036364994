package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/gin-gonic/gin"

	"github.com/venkywonka/cuml/cuml-share/base/config"
	"github.com/venkywonka/cuml/cuml-share/base/logger"
	"github.com/venkywonka/cuml/decision_tree/param/conf_manager"
)

func main() {
	go func() {
		err := http.ListenAndServe(":8081", nil)
		if err != nil {
			fmt.Printf("http.ListenAndServe failed, err:%s", err)
		}
	}()

	// 一些初始化配置
	config.InitConfig()
	all := config.All
	l := all.Logger
	ss := all.Server
	logger.InitLogger(l.Level, "cuml", l.Path, l.MaxAge, l.RotationTime, l.RotationSize, ss.SentryDsn)

	tc := all.Trainer
	conf_manager.ParamsTablePrint("TRAINER PARAMETER TABLE", map[string]map[string]interface{}{
		"trainer": {
			"tree-num":              tc.TreeNum,
			"max-depth":             tc.MaxDepth,
			"max-leaves":            tc.MaxLeaves,
			"max-batch-size":        tc.MaxBatchSize,
			"n-bins":                tc.NBins,
			"min-samples-split":     tc.MinSamplesSplit,
			"min-samples-leaf":      tc.MinSamplesLeaf,
			"min-impurity-decrease": tc.MinImpurityDecrease,
			"criterion":             tc.SplitCriterion,
			"max-features":          tc.MaxFeatures,
			"bootstrap":             tc.Bootstrap,
		},
	})

	r := gin.Default()

	r.POST("/train", train)

	address := ":" + ss.HttpPort
	r.Run(address)
}
