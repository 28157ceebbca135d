package hcl_adapter

import (
	"io"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/unibuild/internal/driver"
	"github.com/zclconf/go-cty/cty"
)

// WritePlan renders the resolved build matrix as HCL: one `target` block per
// resolvable job and one `skipped` block per job that cannot be built.
func WritePlan(w io.Writer, jobs []driver.Job) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for i, job := range jobs {
		if i > 0 {
			body.AppendNewline()
		}
		if job.Err != nil {
			block := body.AppendNewBlock("skipped", []string{job.Target.Label()})
			block.Body().SetAttributeValue("reason", cty.StringVal(job.Err.Error()))
			continue
		}

		cfg := job.Config
		block := body.AppendNewBlock("target", []string{job.Target.Label()})
		b := block.Body()
		b.SetAttributeValue("platform", cty.StringVal(string(cfg.Target.Platform)))
		b.SetAttributeValue("arch", cty.StringVal(string(cfg.Target.Arch)))
		b.SetAttributeValue("sdk_platform", cty.StringVal(cfg.SDKPlatform))
		b.SetAttributeValue("sdk_root", cty.StringVal(cfg.SDKRoot))
		b.SetAttributeValue("host", cty.StringVal(cfg.Host))
		b.SetAttributeValue("min_os", cty.StringVal(cfg.MinOSVersion))
		b.SetAttributeValue("cflags", stringList(cfg.CFlags))
		b.SetAttributeValue("ldflags", stringList(cfg.LDFlags))
		b.SetAttributeValue("toolchain_bin", cty.StringVal(cfg.ToolchainBinDir))
	}

	_, err := f.WriteTo(w)
	return err
}

func stringList(values []string) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.StringVal(v)
	}
	return cty.ListVal(vals)
}
