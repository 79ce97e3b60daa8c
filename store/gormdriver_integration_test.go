package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/google/go-cmp/cmp"
)

func TestGormDriver_LegacyThenVersioned(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _, _ = dockerRun("rm", "-f", mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "dashboard_test")
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()

	if err := models.MigrateTable(db, models.ShapeLegacy); err != nil {
		t.Fatalf("migrate legacy: %v", err)
	}
	driver := NewGormDriver(db)

	// legacy relation: versioned probe fails on a missing column
	legacy := newTestClient(driver, nil)
	if shape, err := legacy.Shape(ctx); err != nil || shape != models.ShapeLegacy {
		t.Fatalf("Shape = %s, %v; want legacy", shape, err)
	}
	records := []models.MetricRecord{
		peopleServed("1,200"),
		{SectionKey: "Programs Analytics", Category: "Reach", MetricName: "Meals Delivered", DisplayOrder: 2, CurrentValue: "800",
			Benchmarks: []string{"Regional: 2,900", "National: 3,100"}},
	}
	res, err := legacy.UpsertMany(ctx, records)
	if err != nil {
		t.Fatalf("legacy upsert: %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("legacy upsert = %+v, want 2 inserted", res)
	}
	if res, err = legacy.UpsertMany(ctx, records); err != nil || res.Unchanged != 2 {
		t.Fatalf("legacy re-upsert = %+v, %v; want 2 unchanged", res, err)
	}
	meals, err := legacy.Get(ctx, "programs", "meals_delivered")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff([]string{"Regional: 2,900", "National: 3,100"}, meals.Benchmarks); diff != "" {
		t.Errorf("benchmarks mismatch (-want +got):\n%s", diff)
	}

	// startup migration on a populated legacy table keeps it legacy
	if shape, err := Migrate(ctx, db); err != nil || shape != models.ShapeLegacy {
		t.Fatalf("Migrate = %s, %v; want legacy", shape, err)
	}
	if db.Migrator().HasColumn(&models.VersionedMetricRow{}, "metric_key") {
		t.Fatal("legacy table was widened with versioned columns")
	}
	reopened := newTestClient(driver, nil)
	if shape, err := reopened.Shape(ctx); err != nil || shape != models.ShapeLegacy {
		t.Fatalf("Shape after migrate = %s, %v; want legacy", shape, err)
	}
	if got, err := reopened.Get(ctx, "programs", "people_served"); err != nil || got.CurrentValue != "1,200" {
		t.Fatalf("people_served after migrate = %+v, %v", got, err)
	}

	// sections fall back to the metrics when the relation is gone
	if err := db.Migrator().DropTable(models.TableSections); err != nil {
		t.Fatalf("drop sections: %v", err)
	}
	sections, err := legacy.Sections(ctx)
	if err != nil {
		t.Fatalf("Sections: %v", err)
	}
	if len(sections) != 1 || sections[0].SectionKey != "programs" {
		t.Errorf("derived sections = %+v, want [programs]", sections)
	}

	// a missing relation is reported, not swallowed
	if err := db.Migrator().DropTable(models.TableMetrics); err != nil {
		t.Fatalf("drop metrics: %v", err)
	}
	if _, err := newTestClient(driver, nil).GetAll(ctx); !errors.Is(err, ErrSchemaAbsent) {
		t.Fatalf("GetAll on empty schema = %v, want ErrSchemaAbsent", err)
	}

	if err := models.MigrateTable(db, models.ShapeVersioned); err != nil {
		t.Fatalf("migrate versioned: %v", err)
	}
	versioned := newTestClient(driver, nil)
	if shape, err := versioned.Shape(ctx); err != nil || shape != models.ShapeVersioned {
		t.Fatalf("Shape = %s, %v; want versioned", shape, err)
	}
	if _, err := versioned.UpsertMany(ctx, records); err != nil {
		t.Fatalf("versioned upsert: %v", err)
	}
	updated := peopleServed("1,250")
	if res, err := versioned.UpsertOne(ctx, updated); err != nil || res.Updated != 1 {
		t.Fatalf("versioned update = %+v, %v; want 1 updated", res, err)
	}
	got, err := versioned.Get(ctx, "programs", "people_served")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CurrentValue != "1,250" || got.MetricName != "People Served" {
		t.Errorf("people_served = %+v", got)
	}
	if deleted, err := versioned.DeleteOne(ctx, "programs", "meals_delivered"); err != nil || !deleted {
		t.Fatalf("DeleteOne = %v, %v", deleted, err)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("dashboard-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=dashboard_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysql", "-h", "127.0.0.1", "-uroot", "-ptestpw", "-e", "SELECT 1", "dashboard_test")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	m := regexp.MustCompile(`:(\d+)`).FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRun(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
