package maintenance

import "testing"

func TestValidPartitionName_Valid(t *testing.T) {
	name := "pixl_hits_raw_20260115"
	if !validPartitionName.MatchString(name) {
		t.Errorf("expected %q to match validPartitionName regex", name)
	}
}

func TestValidPartitionName_Invalid(t *testing.T) {
	invalid := []string{
		"pixl_hits_raw_abc",
		"other_table_20260115",
		"pixl_hits_raw_2026011",
		"pixl_geo_ip",
		"",
	}
	for _, name := range invalid {
		if validPartitionName.MatchString(name) {
			t.Errorf("expected %q to NOT match validPartitionName regex", name)
		}
	}
}

func TestValidPartitionName_InjectionAttempt(t *testing.T) {
	name := "pixl_hits_raw_20260115; DROP TABLE x"
	if validPartitionName.MatchString(name) {
		t.Errorf("expected %q to NOT match validPartitionName regex (SQL injection attempt)", name)
	}
}
