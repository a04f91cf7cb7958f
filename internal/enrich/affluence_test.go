package enrich

import (
	"context"
	"testing"

	"github.com/smartpixl/smartpixl/internal/hit"
)

func TestGPUTier(t *testing.T) {
	tests := []struct {
		renderer string
		tier     string
	}{
		{"NVIDIA GeForce RTX 4090", "HIGH"},
		{"Apple M3 Pro", "HIGH"},
		{"AMD Radeon RX 7800 XT", "HIGH"},
		{"NVIDIA GeForce GTX 1060", "MID"},
		{"Qualcomm Adreno 740", "MID"},
		{"Intel Iris Xe Graphics", "MID"},
		{"Intel UHD Graphics 630", "LOW"},
		{"ARM Mali-T880", "LOW"},
		{"Google SwiftShader", "LOW"},
		{"Some Future GPU 9000", "Unknown"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		if got := GPUTier(tt.renderer); got != tt.tier {
			t.Errorf("GPUTier(%q) = %q, want %q", tt.renderer, got, tt.tier)
		}
	}
}

func TestAffluence_Tiers(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "loaded workstation",
			query: "webglRenderer=NVIDIA+GeForce+RTX+4090&cores=16&deviceMemory=32&sw=3840&sh=2160",
			want:  "HIGH",
		},
		{
			name:  "mainstream desktop",
			query: "webglRenderer=NVIDIA+GeForce+GTX+1060&cores=8&sw=1920&sh=1080",
			want:  "MID",
		},
		{
			name:  "virtualized scraper",
			query: "webglRenderer=Google+SwiftShader&cores=2&deviceMemory=2",
			want:  "LOW",
		},
		{
			name:  "no signals at all",
			query: "",
			want:  "LOW",
		},
	}
	for _, tt := range tests {
		ec := newTestCtx(tt.query)
		if err := (Affluence{}).Enrich(context.Background(), ec); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if ec.Affluence != tt.want {
			t.Errorf("%s: affluence = %q, want %q", tt.name, ec.Affluence, tt.want)
		}
	}
}

func TestAffluence_Stamps(t *testing.T) {
	ec := newTestCtx("webglRenderer=Apple+M2&cores=8&deviceMemory=16&sw=3456&sh=2234&platform=MacIntel")
	if err := (Affluence{}).Enrich(context.Background(), ec); err != nil {
		t.Fatal(err)
	}
	p := hit.ParseParams(ec.Hit.QueryString)
	if p.Get("_srv_gpuTier") != "HIGH" {
		t.Errorf("gpu tier stamp = %q", p.Get("_srv_gpuTier"))
	}
	if p.Get("_srv_affluence") != "HIGH" {
		t.Errorf("affluence stamp = %q", p.Get("_srv_affluence"))
	}
	if ec.GPUTier != "HIGH" {
		t.Errorf("ctx gpu tier = %q", ec.GPUTier)
	}
}
