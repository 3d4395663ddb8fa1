package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/sources"
)

const assetPassNum = 0

// AssetPipeline copies files verbatim in a single pass.
type AssetPipeline struct {
	base
}

func newAssetPipeline(src sources.Source, env *Env) *AssetPipeline {
	return &AssetPipeline{base: newBase(sources.PipelineAsset, sources.PipelineAsset, assetPassNum, src, env)}
}

func (p *AssetPipeline) Run(ctx context.Context, job *Job, rc *RunContext) (*JobResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc = ensureRunContext(rc)
	entry := records.NewEntry(p.kind, job.Item.Spec)
	res := &JobResult{Entry: entry}
	srcPath := filepath.FromSlash(job.Item.Spec)

	route, err := p.src.Route(job.Item)
	if err != nil {
		entry.AddError(err.Error())
		return res, nil
	}
	entry.Route = route
	hash, err := hashFile(srcPath)
	if err != nil {
		entry.AddError(fmt.Sprintf("read asset: %v", err))
		return res, nil
	}
	entry.Hash = hash
	if reused := p.reuse(rc.Previous, hash); reused != nil {
		rc.Stats.StepCounter("assets_reused", 1)
		reused.Route = route
		return &JobResult{Entry: reused}, nil
	}
	if err := copyFile(srcPath, p.outPath(route)); err != nil {
		entry.AddError(fmt.Sprintf("copy asset: %v", err))
		return res, nil
	}
	entry.AddOutput(route)
	rc.Stats.StepCounter("assets_copied", 1)
	return res, nil
}
