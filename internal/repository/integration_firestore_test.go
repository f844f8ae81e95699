//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"

	"juku-attendance/backend/internal/model"
	"juku-attendance/backend/internal/repository"
)

// newEmulatorStore 连接 FIRESTORE_EMULATOR_HOST 指向的模拟器
func newEmulatorStore(t *testing.T) (repository.ScheduleStore, *firestore.Client) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("未设置 FIRESTORE_EMULATOR_HOST")
	}
	client, err := firestore.NewClient(context.Background(), "juku-attendance-test")
	if err != nil {
		t.Fatalf("创建 Firestore 客户端失败: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return repository.NewFirestoreRepository(client).Schedule, client
}

func TestFirestore_RoundTrip(t *testing.T) {
	store, client := newEmulatorStore(t)
	ctx := context.Background()
	const sid, docID = "s9990101", "999_2030-02-04_1"

	lesson := model.Lesson{StudentID: sid, Status: model.StatusMakeup, Period: 3, Date: "2030-02-04"}
	err := store.RunInTx(ctx, func(ctx context.Context, tx repository.ScheduleTx) error {
		if _, err := tx.FetchDoc(ctx, repository.CollectionDailySchedules, docID); err != nil {
			return err
		}
		if _, err := tx.FetchMakeupDoc(ctx, sid, docID); err != nil {
			return err
		}
		if err := tx.SaveDoc(ctx, repository.CollectionDailySchedules, docID, sampleDoc(sid)); err != nil {
			return err
		}
		if err := tx.SaveMakeupDoc(ctx, sid, docID, []model.Lesson{lesson}); err != nil {
			return err
		}
		return tx.SaveArchiveDoc(ctx, sid, docID, lesson)
	})
	if err != nil {
		t.Fatalf("RunInTx 失败: %v", err)
	}

	// 旧版前端直接读取的路径
	for _, path := range []string{
		"dailySchedules/" + docID,
		"students/" + sid + "/makeupLessons/" + docID,
		"students/" + sid + "/makeupLessonsArchive/" + docID,
	} {
		if _, err := client.Doc(path).Get(ctx); err != nil {
			t.Errorf("期望文档 %s 存在: %v", path, err)
		}
	}

	err = store.ReadOnly(ctx, func(ctx context.Context, tx repository.ScheduleTx) error {
		doc, err := tx.FetchDoc(ctx, repository.CollectionDailySchedules, docID)
		if err != nil {
			return err
		}
		if doc == nil || doc.Rows[0].Periods["period1"][0].StudentID != sid {
			t.Errorf("排课文档内容不符: %+v", doc)
		}
		makeup, err := tx.FetchMakeupDoc(ctx, sid, docID)
		if err != nil {
			return err
		}
		if makeup == nil || len(makeup.Lessons) != 1 || makeup.Lessons[0].Period != 3 {
			t.Errorf("调课文档内容不符: %+v", makeup)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly 失败: %v", err)
	}

	// 清空调课 → 文档删除
	if err := store.RunInTx(ctx, func(ctx context.Context, tx repository.ScheduleTx) error {
		return tx.SaveMakeupDoc(ctx, sid, docID, nil)
	}); err != nil {
		t.Fatalf("清空调课失败: %v", err)
	}
	if _, err := client.Doc("students/" + sid + "/makeupLessons/" + docID).Get(ctx); err == nil {
		t.Error("空调课文档应被删除")
	}
}

func TestFirestore_PeriodLabelsFallback(t *testing.T) {
	store, client := newEmulatorStore(t)
	ctx := context.Background()

	common := model.PeriodLabelDoc{Labels: []model.PeriodLabel{{Label: "1限"}, {Label: "2限"}}}
	if _, err := client.Doc("common/periodLabels").Set(ctx, common); err != nil {
		t.Fatalf("写入公共时段标签失败: %v", err)
	}

	got, err := store.GetPeriodLabels(ctx, "998")
	if err != nil || len(got) != 2 {
		t.Fatalf("期望回退到公共时段标签，实际 %v (%v)", got, err)
	}

	if err := store.SavePeriodLabels(ctx, "998", []model.PeriodLabel{{Label: "A"}}); err != nil {
		t.Fatalf("保存时段标签失败: %v", err)
	}
	if _, err := client.Doc("periodLabelsBySchool/998").Get(ctx); err != nil {
		t.Errorf("期望写入 periodLabelsBySchool/998: %v", err)
	}
	got, err = store.GetPeriodLabels(ctx, "998")
	if err != nil || len(got) != 1 || got[0].Label != "A" {
		t.Errorf("期望读取教室自定义标签，实际 %v (%v)", got, err)
	}
}
