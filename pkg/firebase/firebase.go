package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"juku-attendance/backend/config"
)

// NewFirestore 初始化 Firebase App 并返回 Firestore 客户端
// credentials_file 为空时使用 GOOGLE_APPLICATION_CREDENTIALS / 默认凭据
func NewFirestore(ctx context.Context, cfg *config.FirebaseConfig, logger *zap.Logger) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		logger.Warn("未配置 Firebase 凭据文件，使用默认凭据")
	}

	app, err := fb.NewApp(ctx, &fb.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("初始化 Firebase App 失败: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("初始化 Firestore 客户端失败: %w", err)
	}

	logger.Info("Firestore 连接成功", zap.String("project_id", cfg.ProjectID))
	return client, nil
}
