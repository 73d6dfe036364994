package conf_manager

import (
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ParamsTablePrint 启动时把一组生效的参数打印成表，值统一转成interface{}传进来
func ParamsTablePrint(title string, sections map[string]map[string]interface{}) {
	t := table.NewWriter()
	//todo 这里可以考虑打印在err和文件里面，后续看看怎么设置日志
	t.SetOutputMirror(os.Stderr)
	t.SetColumnConfigs([]table.ColumnConfig{{Name: "Section", Align: text.AlignCenter, AlignHeader: text.AlignCenter, WidthMax: 20, WidthMin: 20},
		{Name: "Parameter", Align: text.AlignCenter, AlignHeader: text.AlignCenter, WidthMax: 30, WidthMin: 30},
		{Name: "Value", AlignHeader: text.AlignCenter, WidthMax: 70, WidthMin: 70}})
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Section", "Parameter", "Value"}, table.RowConfig{AutoMerge: true})

	sectionNames := make([]string, 0, len(sections))
	for name := range sections {
		sectionNames = append(sectionNames, name)
	}
	sort.Strings(sectionNames)

	for _, name := range sectionNames {
		valueMap := sections[name]
		//输出排个序，每次一致,同时计算一个中位数的位置去放一级参数名
		median := len(valueMap) / 2
		orderedKList := make([]string, 0, len(valueMap))
		for k := range valueMap {
			orderedKList = append(orderedKList, k)
		}
		sort.Strings(orderedKList)
		for i, k := range orderedKList {
			if i == median {
				t.AppendRow(table.Row{name, k, valueMap[k]})
			} else {
				t.AppendRow(table.Row{"", k, valueMap[k]})
			}
		}
		t.AppendSeparator()
	}
	t.Render()
}
