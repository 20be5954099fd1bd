// Package cv 封装定位流水线中依赖 OpenCV 的部分
//
// 包含以下组件:
//   - 透明通道掩码提取 (AlphaMask)
//   - 特征点检测 (SIFT / ORB / AKAZE)，结果严格限定在掩码内
//   - 描述子 kNN 匹配与比率检验
//   - 带掩码的归一化互相关模板匹配（回退路径）
//
// 基本用法:
//
//	det, err := cv.NewDetector(cv.DetectorSIFT, 4000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer det.Close()
//
//	feats, err := det.Detect(gray, mask)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer feats.Close()
//	fmt.Printf("检测到 %d 个特征点\n", feats.Len())
//
// 本包中所有返回 gocv.Mat 或 *Features 的函数都把所有权交给调用方，
// 使用完毕后必须调用 Close。
package cv
