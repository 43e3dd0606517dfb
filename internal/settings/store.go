// Package settings stores runtime-editable settings, currently the
// chat system prompt, in Redis so they survive restarts.
package settings

import (
	"context"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"
)

const systemPromptKey = "settings:system_prompt"

// DefaultSystemPrompt is served until an administrator sets a custom one.
const DefaultSystemPrompt = `あなたは人事評価のアドバイザーです。
評価者が適切な評価を行えるよう、以下のサポートを提供します：

- 評価基準の説明と解釈
- フィードバックの書き方のアドバイス
- 評価スコアの妥当性確認
- 成長目標の設定支援

回答は日本語で、簡潔かつ具体的に行ってください。
参考資料が提供された場合は、その内容を踏まえて回答してください。`

type Store struct {
	client *redisv9.Client
}

func NewStore(client *redisv9.Client) *Store {
	return &Store{client: client}
}

// SystemPrompt returns the stored prompt, or the default when none has
// been set.
func (s *Store) SystemPrompt(ctx context.Context) (string, error) {
	raw, err := s.client.Get(ctx, systemPromptKey).Result()
	if err == redisv9.Nil {
		return DefaultSystemPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get system prompt failed: %w", err)
	}
	return raw, nil
}

// SetSystemPrompt stores a custom prompt. An empty prompt resets back
// to the default.
func (s *Store) SetSystemPrompt(ctx context.Context, prompt string) error {
	if prompt == "" {
		if err := s.client.Del(ctx, systemPromptKey).Err(); err != nil {
			return fmt.Errorf("redis delete system prompt failed: %w", err)
		}
		return nil
	}
	if err := s.client.Set(ctx, systemPromptKey, prompt, 0).Err(); err != nil {
		return fmt.Errorf("redis set system prompt failed: %w", err)
	}
	return nil
}
