package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：文档已被其他操作修改
var ErrOptimisticLock = errors.New("文档已被其他操作修改，请刷新后重试")

// ErrStoreUnavailable 文档存储不可用（连接失败、超时等）
var ErrStoreUnavailable = errors.New("文档存储暂不可用")
