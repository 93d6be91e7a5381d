// Package pong 是一個雙人即時對戰 Pong 的遊戲服務器。
//
// 服務器擁有唯一的權威遊戲狀態：客戶端只回報球拍位置，
// 伺服器以固定頻率（預設 60 Hz）推進物理並廣播快照。
//
// # 元件
//
//   - internal/room：房間註冊表，產生 6 位十六進位房間 ID，最多兩名玩家
//   - internal/scheduler：每個房間一個 Ticker，Stop 返回後保證不再觸發
//   - internal/physics：純函數的物理推進（牆壁反彈、球拍碰撞、得分、重新發球）
//   - internal/gateway：單一事件迴圈、WebSocket 傳輸與 HTTP API
//
// 輔助元件皆為可選，未配置時使用 no-op 實作：
//   - internal/ratelimit：Redis token bucket，限制每個 IP 建立房間的頻率
//   - internal/matches：PostgreSQL 保存已結束的對戰
//   - internal/events：NATS 發布房間生命週期事件
//
// # 併發模型
//
// 所有房間狀態只在 Gateway 的事件迴圈上修改。連線的讀取 goroutine
// 與每個房間的 Ticker 都只把閉包排入同一個佇列，因此 room 套件不需要鎖。
// 已被取代的 Ticker 若還有殘留的 tick，事件迴圈會比對房間目前的 Ticker 並丟棄。
//
// # 協議
//
// 每個 WebSocket 訊息是一個 JSON 物件：
//
//	→ {"event":"createGame","id":1}
//	← {"event":"ack","id":1,"data":{"ok":true,"roomId":"a1b2c3","playerIndex":0}}
//	→ {"event":"joinGame","id":1,"data":"a1b2c3"}
//	← {"event":"ack","id":1,"data":{"ok":true,"roomId":"a1b2c3","playerIndex":1}}
//	← {"event":"gameState","data":{"ball":{...},"paddles":[250,250],"score":[0,0]}}
//	→ {"event":"paddleMove","data":300}
//	← {"event":"playerLeft"}
//
// 任一玩家斷線時房間立即結束，另一名玩家收到 playerLeft。
//
// # 啟動
//
//	go run ./cmd/server -config config.example.yaml
//
// 配置選項：
//   - -config：YAML 配置檔
//   - -port：服務監聽端口（預設 3000）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
//
// 環境變數 PORT、LOG_LEVEL、REDIS_ADDR、DATABASE_URL、NATS_URL 覆蓋配置檔。
//
// # 測試
//
//	go test -short ./...   # 跳過需要 Docker 的整合測試
//	go test ./...          # 使用 testcontainers 啟動 Redis 與 PostgreSQL
package pong
